package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// fastaRecord is one contig read from a minimal FASTA-like file: a header
// line ">name" followed by sequence lines concatenated until the next
// header. This is deliberately not a full FASTA parser -- per spec.md §1,
// file ingestion is an external collaborator's concern. It exists only so
// the CLI can drive build/search verbs end to end without a separate
// ingest tool.
type fastaRecord struct {
	ContigName string
	Sequence   string
}

func readFastaLike(path string) ([]fastaRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []fastaRecord
	var cur *fastaRecord
	var seq strings.Builder

	flush := func() {
		if cur != nil {
			cur.Sequence = strings.ToUpper(seq.String())
			records = append(records, *cur)
		}
		seq.Reset()
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			flush()
			name := strings.Fields(strings.TrimPrefix(line, ">"))
			contigName := "contig"
			if len(name) > 0 {
				contigName = name[0]
			}
			cur = &fastaRecord{ContigName: contigName}
			continue
		}
		seq.WriteString(line)
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// kmerListFile reads one bare k-mer string per line, the "build grid" input
// format: no provenance, just the sequence -- used when the caller has
// already split a corpus into k-mers (e.g. via an external CSV ingest tool)
// and wants them grouped into centroids without contig coordinates.
func kmerListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.ToUpper(line))
	}
	return out, scanner.Err()
}

func genomeNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
