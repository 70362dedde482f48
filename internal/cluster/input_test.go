package cluster

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error { return nil }

func TestReadMates(t *testing.T) {
	mates, err := ReadMates(strings.NewReader("r1 r2\n\nr3\tr4\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"r1": "r2", "r3": "r4"}, mates)

	_, err = ReadMates(strings.NewReader("r1 r2 r3\n"))
	assert.Error(t, err)
}

func TestReadConstraints(t *testing.T) {
	constraints, err := ReadConstraints(strings.NewReader("r1 0\nr2 1\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"r1": 0, "r2": 1}, constraints)

	_, err = ReadConstraints(strings.NewReader("r1 x\n"))
	assert.Error(t, err)
}

func TestReadWriteClusters(t *testing.T) {
	reads, err := ReadFASTA(strings.NewReader(">a x\nACGT\n>b\nGGCC\n>c\nTTTT\n"))
	require.NoError(t, err)
	require.Len(t, reads, 3)
	assert.Equal(t, Read{ID: "a", Seq: "ACGT"}, reads[0])

	res := &Result{K: 2, Assign: []int{1, 0, 1}}
	out := map[int]*bytes.Buffer{}
	err = WriteClusters(reads, res, func(i int) (io.WriteCloser, error) {
		out[i] = &bytes.Buffer{}
		return nopCloser{out[i]}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, ">b\nGGCC\n", out[0].String())
	assert.Equal(t, ">a\nACGT\n>c\nTTTT\n", out[1].String())
}
