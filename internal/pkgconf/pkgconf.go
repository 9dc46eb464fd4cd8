// Package pkgconf reads package.conf files, the key=value descriptions that
// accompany a package archive, and maps them onto SWAMP package types and
// package version attributes.
package pkgconf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-ini/ini"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/errdefs"
)

// DefaultDescription is used when package.conf has no package-description.
const DefaultDescription = "No Description Available"

// FallbackTypeIDs maps package type names to the identifiers the service
// has historically used, for when packages/types cannot be read.
var FallbackTypeIDs = map[string]string{
	"C/C++":                    "1",
	"Java 7 Source Code":       "2",
	"Java 7 Bytecode":          "3",
	"Python2":                  "4",
	"Python3":                  "5",
	"Android Java Source Code": "6",
	"Ruby":                     "7",
	"Ruby Sinatra":             "8",
	"Ruby on Rails":            "9",
	"Ruby Padrino":             "10",
	"Android .apk":             "11",
	"Java 8 Source Code":       "12",
	"Java 8 Bytecode":          "13",
	"Web Scripting":            "14",
}

// Conf is a parsed package.conf.
type Conf struct {
	values map[string]string
	keys   []string
}

// Parse reads properties from r. Lines are key=value or key: value; lines
// starting with # or ! are comments and a trailing backslash continues a
// value on the next line.
func Parse(r io.Reader) (*Conf, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &errdefs.ParserError{Err: fmt.Errorf("read package.conf: %w", err)}
	}
	f, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:      "=:",
		IgnoreInlineComment:     true,
		PreserveSurroundedQuote: true,
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
	}, normalize(data))
	if err != nil {
		return nil, &errdefs.ParserError{Err: fmt.Errorf("parse package.conf: %w", err)}
	}

	c := &Conf{values: map[string]string{}}
	for _, k := range f.Section(ini.DefaultSection).Keys() {
		if _, seen := c.values[k.Name()]; !seen {
			c.keys = append(c.keys, k.Name())
		}
		c.values[k.Name()] = strings.TrimSpace(k.Value())
	}
	return c, nil
}

// normalize turns !-comments into #-comments, which is the only comment
// syntax ini shares with properties files.
func normalize(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		trimmed := bytes.TrimLeft(line, " \t")
		if bytes.HasPrefix(trimmed, []byte("!")) {
			lines[i] = append([]byte("#"), trimmed[1:]...)
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

// Load parses the package.conf at path.
func Load(path string) (*Conf, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errdefs.ClientOptionError{Msg: fmt.Sprintf("open package.conf: %v", err)}
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // Best effort close in defer
	}()
	return Parse(f)
}

// Get returns the value of key, or "".
func (c *Conf) Get(key string) string { return c.values[key] }

// Lookup returns the value of key and whether it is set.
func (c *Conf) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the keys in file order.
func (c *Conf) Keys() []string { return append([]string(nil), c.keys...) }

func (c *Conf) getOr(key, def string) string {
	if v, ok := c.values[key]; ok && v != "" {
		return v
	}
	return def
}

func (c *Conf) ShortName() string       { return c.Get("package-short-name") }
func (c *Conf) Version() string         { return c.Get("package-version") }
func (c *Conf) Description() string     { return c.getOr("package-description", DefaultDescription) }
func (c *Conf) ExternalURL() string     { return c.Get("external-url") }
func (c *Conf) Language() string        { return c.Get("package-language") }
func (c *Conf) LanguageVersion() string { return c.Get("package-language-version") }
func (c *Conf) BuildSystem() string     { return c.Get("build-sys") }
func (c *Conf) PackageType() string     { return c.Get("package-type") }

// TypeName returns the SWAMP package type the file describes, or "".
func (c *Conf) TypeName() string {
	return TypeName(c.Language(), c.LanguageVersion(), c.BuildSystem(), c.PackageType())
}

// Validate checks the keys every upload needs.
func (c *Conf) Validate() error {
	for _, key := range []string{"package-short-name", "package-version", "package-language"} {
		if c.Get(key) == "" {
			return &errdefs.ParserError{Err: fmt.Errorf("package.conf: %s is required", key)}
		}
	}
	if c.TypeName() == "" {
		return &errdefs.ParserError{Err: fmt.Errorf("package.conf: unsupported package-language %q", c.Language())}
	}
	return nil
}

// TypeName maps package.conf attributes to a SWAMP package type name. Only
// the first word of lang is considered, except for the dual Python form.
// It returns "" for combinations the service has no type for.
func TypeName(lang, langVersion, buildSys, pkgType string) string {
	buildSys = strings.ToLower(buildSys)
	langVersion = strings.ToLower(langVersion)
	if buildSys == "android-apk" {
		return "Android .apk"
	}
	if lang == "Python-2 Python-3" {
		return "Python3"
	}
	if i := strings.IndexByte(lang, ' '); i >= 0 {
		lang = lang[:i]
	}

	switch lang {
	case "Java":
		switch {
		case strings.HasPrefix(buildSys, "android"):
			return "Android Java Source Code"
		case buildSys == "java-bytecode":
			if strings.HasPrefix(langVersion, "java-7") {
				return "Java 7 Bytecode"
			}
			return "Java 8 Bytecode"
		case strings.HasPrefix(langVersion, "java-7"):
			return "Java 7 Source Code"
		default:
			return "Java 8 Source Code"
		}
	case "C", "C++":
		return "C/C++"
	case "Python-2":
		return "Python2"
	case "Python-3":
		return "Python3"
	case "Ruby":
		switch strings.ToLower(pkgType) {
		case "":
			return "Ruby"
		case "rails":
			return "Ruby on Rails"
		case "sinatra":
			return "Ruby Sinatra"
		case "padrino":
			return "Ruby Padrino"
		}
	case "PHP", "JavaScript", "HTML", "CSS", "XML":
		return "Web Scripting"
	}
	return ""
}

// versionKeys maps package.conf keys to package version fields.
var versionKeys = []struct{ conf, field, def string }{
	{"android-sdk-target", "android_sdk_target", ""},
	{"android-lint-target", "android_lint_target", ""},
	{"android-maven-plugin", "android_maven_plugin", ""},
	{"android-redo-build", "android_redo_build", "false"},
	{"ant-version", "ant_version", ""},
	{"build-cmd", "build_cmd", ""},
	{"build-dir", "build_dir", ""},
	{"build-file", "build_file", ""},
	{"build-opt", "build_opt", ""},
	{"build-sys", "build_system", ""},
	{"build-target", "build_target", ""},
	{"config-cmd", "config_cmd", ""},
	{"config-opt", "config_opt", ""},
	{"config-dir", "config_dir", ""},
	{"gradle-wrapper", "use_gradle_wrapper", "false"},
	{"maven-version", "maven_version", ""},
	{"package-version", "version_string", ""},
	{"package-dir", "source_path", ""},
	{"package-language-version", "language_version", ""},
	{"package-classpath", "bytecode_class_path", ""},
	{"package-auxclasspath", "bytecode_aux_class_path", ""},
	{"package-srcdir", "bytecode_source_path", ""},
}

// VersionFields returns the package version attributes set by the file.
// Unset keys are omitted unless they have a default.
func (c *Conf) VersionFields() api.Fields {
	f := api.Fields{}
	for _, k := range versionKeys {
		if v := c.getOr(k.conf, k.def); v != "" {
			f[k.field] = api.String(v)
		}
	}
	return f
}

// ParseDependencies reads an OS dependency file: one
// "platform-version-name=package list" line per platform.
func ParseDependencies(r io.Reader) (map[string]string, error) {
	c, err := Parse(r)
	if err != nil {
		return nil, err
	}
	deps := make(map[string]string, len(c.values))
	for _, k := range c.keys {
		if v := c.values[k]; v != "" {
			deps[k] = v
		}
	}
	return deps, nil
}
