package pkgconf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/errdefs"
)

const helloConf = `# sample package
! legacy comment
package-short-name=hello
package-version = 1.0
package-language: C
build-sys=make
build-opt=-j4 # not a comment
package-dir=hello-1.0
`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(helloConf))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	tests := []struct {
		key, want string
	}{
		{"package-short-name", "hello"},
		{"package-version", "1.0"},
		{"package-language", "C"},
		{"build-opt", "-j4 # not a comment"},
		{"package-dir", "hello-1.0"},
	}
	for _, tt := range tests {
		if got := c.Get(tt.key); got != tt.want {
			t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
	if _, ok := c.Lookup("legacy"); ok {
		t.Error("! comment parsed as a key")
	}
	if keys := c.Keys(); len(keys) != 6 || keys[0] != "package-short-name" {
		t.Errorf("Keys() = %v", keys)
	}
	if c.Description() != DefaultDescription {
		t.Errorf("Description() = %q", c.Description())
	}
	if c.TypeName() != "C/C++" {
		t.Errorf("TypeName() = %q", c.TypeName())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.conf")
	if err := os.WriteFile(path, []byte(helloConf), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.ShortName() != "hello" {
		t.Errorf("ShortName() = %q, want hello", c.ShortName())
	}

	var optErr *errdefs.ClientOptionError
	if _, err := Load(filepath.Join(t.TempDir(), "missing.conf")); !errors.As(err, &optErr) {
		t.Errorf("Load(missing) error = %v, want ClientOptionError", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		conf string
	}{
		{"missing name", "package-version=1\npackage-language=C\n"},
		{"missing version", "package-short-name=x\npackage-language=C\n"},
		{"unsupported language", "package-short-name=x\npackage-version=1\npackage-language=Go\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(strings.NewReader(tt.conf))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			err = c.Validate()
			var perr *errdefs.ParserError
			if !errors.As(err, &perr) {
				t.Fatalf("Validate() error = %v, want ParserError", err)
			}
			if errdefs.ExitCode(err) != 2 {
				t.Errorf("ExitCode() = %d, want 2", errdefs.ExitCode(err))
			}
		})
	}
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		lang, langVersion, buildSys, pkgType string
		want                                 string
	}{
		{"C", "", "make", "", "C/C++"},
		{"C++ C", "", "cmake", "", "C/C++"},
		{"Java", "java-7", "ant", "", "Java 7 Source Code"},
		{"Java", "", "maven", "", "Java 8 Source Code"},
		{"Java", "java-7", "java-bytecode", "", "Java 7 Bytecode"},
		{"Java", "java-8", "java-bytecode", "", "Java 8 Bytecode"},
		{"Java", "", "android+ant", "", "Android Java Source Code"},
		{"Java", "", "android-apk", "", "Android .apk"},
		{"Python-2", "", "python-setuptools", "", "Python2"},
		{"Python-3", "", "none", "", "Python3"},
		{"Python-2 Python-3", "", "none", "", "Python3"},
		{"Ruby", "", "bundler", "", "Ruby"},
		{"Ruby", "", "bundler", "rails", "Ruby on Rails"},
		{"Ruby", "", "bundler", "sinatra", "Ruby Sinatra"},
		{"Ruby", "", "bundler", "padrino", "Ruby Padrino"},
		{"Ruby", "", "bundler", "hanami", ""},
		{"PHP", "", "no-build", "", "Web Scripting"},
		{"JavaScript HTML", "", "no-build", "", "Web Scripting"},
		{"Go", "", "none", "", ""},
	}
	for _, tt := range tests {
		got := TypeName(tt.lang, tt.langVersion, tt.buildSys, tt.pkgType)
		if got != tt.want {
			t.Errorf("TypeName(%q, %q, %q, %q) = %q, want %q",
				tt.lang, tt.langVersion, tt.buildSys, tt.pkgType, got, tt.want)
		}
		if got != "" && FallbackTypeIDs[got] == "" {
			t.Errorf("FallbackTypeIDs has no entry for %q", got)
		}
	}
}

func TestVersionFields(t *testing.T) {
	c, err := Parse(strings.NewReader(helloConf))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := api.Fields{
		"version_string":     api.String("1.0"),
		"build_system":       api.String("make"),
		"build_opt":          api.String("-j4 # not a comment"),
		"source_path":        api.String("hello-1.0"),
		"android_redo_build": api.String("false"),
		"use_gradle_wrapper": api.String("false"),
	}
	got := c.VersionFields()
	if len(got) != len(want) {
		t.Fatalf("VersionFields() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k].Text() != v.Text() {
			t.Errorf("VersionFields()[%q] = %q, want %q", k, got[k].Text(), v.Text())
		}
	}
}

func TestParseDependencies(t *testing.T) {
	deps, err := ParseDependencies(strings.NewReader("# deps\nCentOS Linux 6.7 64-bit=gcc make\nFedora 24 64-bit=\n"))
	if err != nil {
		t.Fatalf("ParseDependencies() error = %v", err)
	}
	if len(deps) != 1 || deps["CentOS Linux 6.7 64-bit"] != "gcc make" {
		t.Errorf("ParseDependencies() = %v", deps)
	}
}
