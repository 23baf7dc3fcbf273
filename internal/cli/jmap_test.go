package cli_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris/internal/cli"
)

func TestJMap(t *testing.T) {
	suite.Run(t, new(JMapSuite))
}

type JMapSuite struct {
	suite.Suite
}

func (s *JMapSuite) TestID() {
	s.Empty(cli.JMap{}.ID())
	s.Empty(cli.JMap{"id": 42}.ID(), "a non-string id is treated as absent")
	s.Equal("abc123", cli.JMap{"id": "abc123"}.ID())
}

func (s *JMapSuite) TestString() {
	j := cli.JMap{"id": "abc123", "name": "z1"}
	s.Equal(`{"id":"abc123","name":"z1"}`, j.String())
}

func (s *JMapSuite) TestPrint() {
	stdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	defer func() {
		_ = w.Close()
		os.Stdout = stdout
	}()

	j := cli.JMap{"id": "abc123", "name": "z1"}

	j.Print(false) // id only
	j.Print(true)  // full json

	buf := make([]byte, 64)
	_, _ = r.Read(buf)
	lines := strings.Split(string(buf), "\n")

	s.Equal(j.ID(), lines[0])
	s.Equal(j.String(), lines[1])
}

func (s *JMapSuite) TestSortByID() {
	js := []cli.JMap{
		{"id": "c"},
		{"id": "a"},
		{"id": "b"},
	}

	cli.SortByID(js)

	s.Equal("a", js[0].ID())
	s.Equal("b", js[1].ID())
	s.Equal("c", js[2].ID())
}
