package cluster

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-scimm/scimm/internal/fasta"
)

// ReadFASTA reads every record of r as a read.
func ReadFASTA(r io.Reader) ([]Read, error) {
	records, err := fasta.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	reads := make([]Read, len(records))
	for i, rec := range records {
		reads[i] = Read{ID: rec.ID, Seq: rec.Seq}
	}
	return reads, nil
}

// ReadMates parses lines of two mate read ids.
func ReadMates(r io.Reader) (map[string]string, error) {
	mates := map[string]string{}
	err := scanFields(r, func(line int, fields []string) error {
		mates[fields[0]] = fields[1]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mates: %w", err)
	}
	return mates, nil
}

// ReadConstraints parses lines of a read id and its cluster number.
func ReadConstraints(r io.Reader) (map[string]int, error) {
	constraints := map[string]int{}
	err := scanFields(r, func(line int, fields []string) error {
		cl, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("line %d: cluster %q: %w", line, fields[1], err)
		}
		constraints[fields[0]] = cl
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("constraints: %w", err)
	}
	return constraints, nil
}

func scanFields(r io.Reader, fn func(int, []string) error) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return fmt.Errorf("line %d: expected 2 fields, got %d", line, len(fields))
		}
		if err := fn(line, fields); err != nil {
			return err
		}
	}
	return sc.Err()
}

// WriteClusters writes the reads of every cluster of res with create,
// which returns the destination of cluster i.
func WriteClusters(reads []Read, res *Result, create func(i int) (io.WriteCloser, error)) error {
	for i, members := range res.Clusters() {
		wc, err := create(i)
		if err != nil {
			return fmt.Errorf("cluster %d: %w", i, err)
		}
		w := fasta.NewWriter(wc)
		for _, r := range members {
			if err := w.Write(fasta.Record{ID: reads[r].ID, Seq: reads[r].Seq}); err != nil {
				_ = wc.Close()
				return fmt.Errorf("cluster %d: %w", i, err)
			}
		}
		if err := w.Flush(); err != nil {
			_ = wc.Close()
			return fmt.Errorf("cluster %d: %w", i, err)
		}
		if err := wc.Close(); err != nil {
			return fmt.Errorf("cluster %d: %w", i, err)
		}
	}
	return nil
}
