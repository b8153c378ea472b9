package resultstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestWrite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result", "computation_result.csv")
	desc := []Column{{"language", "Go"}, {"mode", "default"}, {"version", "1.22"}, {"path", "go/go-1.22"}}
	vals := []Column{{"time_median", "1500"}, {"memory_median", "1048576"}}

	require.NoError(t, Write(path, desc, vals, nil))
	require.NoError(t, Write(path, desc, vals, nil))

	assert.Equal(t,
		"language,mode,version,path,time_median,memory_median\n"+
			"Go,default,1.22,go/go-1.22,1500,1048576\n",
		readFile(t, path))
}

func TestWrite_KeepHigherFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web_result.csv")
	desc := []Column{{"language", "Rust"}}

	require.NoError(t, Write(path, desc, []Column{{"rps_median", "10"}, {"errors", "0"}}, KeepHigherFirst))
	require.NoError(t, Write(path, desc, []Column{{"rps_median", "15"}, {"errors", "1"}}, KeepHigherFirst))
	assert.Equal(t, "language,rps_median,errors\nRust,15,1\n", readFile(t, path))

	require.NoError(t, Write(path, desc, []Column{{"rps_median", "5"}, {"errors", "2"}}, KeepHigherFirst))
	assert.Equal(t, "language,rps_median,errors\nRust,15,1\n", readFile(t, path))

	path = filepath.Join(t.TempDir(), "web_result.csv")
	require.NoError(t, Write(path, desc, []Column{{"rps_median", "5"}}, KeepHigherFirst))
	require.NoError(t, Write(path, desc, []Column{{"rps_median", "10"}}, KeepHigherFirst))
	assert.Equal(t, "language,rps_median\nRust,10\n", readFile(t, path))
}

func TestWrite_KeepLowerFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "computation_result.csv")
	desc := []Column{{"language", "C"}}

	require.NoError(t, Write(path, desc, []Column{{"time_median", "900"}}, KeepLowerFirst))
	require.NoError(t, Write(path, desc, []Column{{"time_median", "1000"}}, KeepLowerFirst))
	assert.Equal(t, "language,time_median\nC,900\n", readFile(t, path))

	require.NoError(t, Write(path, desc, []Column{{"time_median", "800"}}, KeepLowerFirst))
	assert.Equal(t, "language,time_median\nC,800\n", readFile(t, path))
}

func TestWrite_Sorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	for _, row := range [][3]string{{"1", "2", "4"}, {"1", "1", "2"}, {"1", "2", "3"}} {
		desc := []Column{{"a", row[0]}, {"b", row[1]}, {"c", row[2]}}
		require.NoError(t, Write(path, desc, []Column{{"value", "x"}}, nil))
	}

	assert.Equal(t, "a,b,c,value\n1,1,2,x\n1,2,3,x\n1,2,4,x\n", readFile(t, path))
}

func TestWrite_VersionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	for _, v := range []string{"1.10", "1.2", "1.9"} {
		require.NoError(t, Write(path, []Column{{"language", "Java"}, {"version", v}}, []Column{{"time", "1"}}, nil))
	}

	assert.Equal(t, "language,version,time\nJava,1.2,1\nJava,1.9,1\nJava,1.10,1\n", readFile(t, path))
}

func TestWrite_DescriptorMatchIsExact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, Write(path, []Column{{"path", "go/gin"}}, []Column{{"rps", "1"}}, nil))
	require.NoError(t, Write(path, []Column{{"path", "go/gin-1.10"}}, []Column{{"rps", "2"}}, nil))
	require.NoError(t, Write(path, []Column{{"path", "go/gin"}}, []Column{{"rps", "3"}}, nil))

	assert.Equal(t, "path,rps\ngo/gin,3\ngo/gin-1.10,2\n", readFile(t, path))
}

func TestWrite_QuotesCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, Write(path, []Column{{"framework", "a,b"}}, []Column{{"rps", "1"}}, nil))
	require.NoError(t, Write(path, []Column{{"framework", "a,b"}}, []Column{{"rps", "2"}}, nil))

	assert.Equal(t, "framework,rps\n\"a,b\",2\n", readFile(t, path))
}

func TestWrite_FailureKeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.csv")
	require.NoError(t, Write(path, []Column{{"language", "Go"}}, []Column{{"rps", "1"}}, nil))

	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	err := Write(path, []Column{{"language", "Rust"}}, []Column{{"rps", "2"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	assert.Equal(t, "language,rps\nGo,1\n", readFile(t, path))
}

func TestCompareRows(t *testing.T) {
	assert.Negative(t, CompareRows([]string{"1.2"}, []string{"1.10"}))
	assert.Positive(t, CompareRows([]string{"1.2"}, []string{"1.1"}))
	assert.Negative(t, CompareRows([]string{"a"}, []string{"b"}))
	assert.Negative(t, CompareRows([]string{"Go", "1.9"}, []string{"Go", "1.10"}))
	assert.Positive(t, CompareRows([]string{"Java", "1.9"}, []string{"Go", "1.10"}))
	assert.Zero(t, CompareRows([]string{"1", "x"}, []string{"1", "x"}))
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web_result.csv")

	header, rows, err := Read(path)
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Empty(t, rows)

	require.NoError(t, Write(path, []Column{{"language", "Go"}}, []Column{{"rps_median", "100"}}, nil))
	header, rows, err = Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"language", "rps_median"}, header)
	assert.Equal(t, [][]string{{"Go", "100"}}, rows)
}
