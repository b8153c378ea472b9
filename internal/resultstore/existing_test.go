package resultstore

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadExisting_Web(t *testing.T) {
	content := `language,mode,version,framework,framework_stdlib,framework_website,framework_flavor,framework_version,concurrency,path,rps_median
Java,JVM,8,Spring Boot,false,https://spring.io,default,3,32,java/springboot-java,100
Java,JVM,17,Spring Boot,false,https://spring.io,default,3,32,java/springboot-java,100
PHP,default,7,Symfony,false,https://symfony.com,default,4.0,32,php/symfony-php,100
PHP,default,8,Symfony,false,https://symfony.com,default,5.0,32,php/symfony-php,100
Rust,default,1.67,Actix,false,https://actix.rs,default,4,32,rust/actix-rust,100
`
	m, err := readExisting(strings.NewReader(content), WebLayout)
	require.NoError(t, err)
	assert.Len(t, m, 3)

	spring := m.Lookup("java", "springboot-java")
	require.NotNil(t, spring)
	assert.Equal(t, "java", spring.Language)
	assert.Equal(t, "springboot-java", spring.Variant)
	assert.Equal(t, map[string]struct{}{"8": {}, "17": {}}, spring.LanguageVersions)
	assert.Equal(t, map[string]struct{}{"3": {}}, spring.FrameworkVersions)

	symfony := m.Lookup("php", "symfony-php")
	require.NotNil(t, symfony)
	assert.Len(t, symfony.LanguageVersions, 2)
	assert.Equal(t, map[string]struct{}{"4.0": {}, "5.0": {}}, symfony.FrameworkVersions)

	actix := m.Lookup("rust", "actix-rust")
	require.NotNil(t, actix)
	assert.True(t, actix.Has("1.67", "4"))
	assert.False(t, actix.Has("1.67", "5"))
	assert.False(t, actix.Has("1.68", "4"))

	assert.Nil(t, m.Lookup("go", "gin"))
	assert.False(t, m.Lookup("go", "gin").Has("1.22", ""))
}

func TestReadExisting_Computation(t *testing.T) {
	content := "language,mode,version,path,time_median,memory_median\nGo,default,1.22,go/go-1.22,1000,5\n\n"
	m, err := readExisting(strings.NewReader(content), ComputationLayout)
	require.NoError(t, err)

	e := m.Lookup("go", "go-1.22")
	require.NotNil(t, e)
	assert.True(t, e.Has("1.22", ""))
	assert.Empty(t, e.FrameworkVersions)
}

func TestReadExisting_InvalidPath(t *testing.T) {
	_, err := readExisting(strings.NewReader("version,path\n1,go\n"), ComputationLayout)
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = readExisting(strings.NewReader("version,path\n1,go/a/b\n"), ComputationLayout)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestReadExisting_MissingColumn(t *testing.T) {
	_, err := readExisting(strings.NewReader("language,path\nGo,go/gin\n"), ComputationLayout)
	assert.Error(t, err)
}

func TestReadExisting_File(t *testing.T) {
	m, err := ReadExisting(filepath.Join(t.TempDir(), "missing.csv"), WebLayout)
	require.NoError(t, err)
	assert.Empty(t, m)

	path := filepath.Join(t.TempDir(), "computation_result.csv")
	require.NoError(t, Write(path,
		[]Column{{"language", "Go"}, {"mode", "default"}, {"version", "1.22"}, {"path", "go/go-1.22"}},
		[]Column{{"time_median", "1"}}, nil))

	m, err = ReadExisting(path, ComputationLayout)
	require.NoError(t, err)
	assert.True(t, m.Lookup("go", "go-1.22").Has("1.22", ""))
}
