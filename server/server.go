// Package server implements the stateful request/reply search service of
// §4.J: a single shared storage handle served one request at a time over a
// newline-delimited JSON socket. No example in the retrieval pack wires a
// message-queue or RPC library (no zmq, nats, or grpc import appears
// anywhere in _examples), so this package is built on the standard
// library's net and encoding/json packages alone -- the one ambient
// component in AriesK without a third-party backing, called out here per
// the grounding-ledger rule for stdlib fallbacks.
package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	ariesk "github.com/dcdanko/AriesK"
	"github.com/dcdanko/AriesK/seedextend"
	"github.com/dcdanko/AriesK/store"
)

// Request is the decoded form of every message a client may send. Fields
// not relevant to Type are left zero; unrecognized fields are rejected when
// serveConn decodes the request, not silently ignored, per §9's "Keyword
// configuration" design note.
type Request struct {
	Type string `json:"type"`

	// search fields
	QueryType       string   `json:"query_type,omitempty"`
	Query           string   `json:"query,omitempty"`
	ResultFile      string   `json:"result_file,omitempty"`
	OuterRadius     *float64 `json:"outer_radius,omitempty"`
	InnerRadius     *float64 `json:"inner_radius,omitempty"`
	InnerMetric     string   `json:"inner_metric,omitempty"`
	SearchMode      string   `json:"search_mode,omitempty"`
	MaxFilterMisses *int     `json:"max_filter_misses,omitempty"`

	// contig search fields
	Radius       *float64 `json:"radius,omitempty"`
	KmerFraction *float64 `json:"kmer_fraction,omitempty"`
	SeqIdentity  *float64 `json:"seq_identity,omitempty"`
}

// Reply is the single JSON message written back for every request except
// shutdown, which gets none.
type Reply struct {
	Type    string `json:"type"`
	Results string `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
}

// errReply builds a ProtocolError reply. The server itself never exits on
// one of these: it sends the reply and continues the loop, per §7.
func errReply(format string, args ...interface{}) Reply {
	return Reply{Type: "error", Error: fmt.Sprintf(format, args...)}
}

// Server holds the single shared storage handle and the in-memory pieces
// derived from it (ramifier, grid index) needed to answer queries. It is
// accessed only from the connection-serving goroutine at any one time; the
// spec's concurrency model forbids concurrent writes while serving, and
// this package never attempts one.
type Server struct {
	Store    *store.Store
	Ramifier *ariesk.Ramifier
	Index    *ariesk.GridIndex
	Picker   ariesk.ParameterPicker
	Logger   *log.Logger
}

// New builds a Server from an open store and ramifier, snapshotting the
// store's centroids into a fresh GridIndex for coarse-search queries. The
// snapshot is safe because §5 forbids writes to the store while it is
// being served.
func New(s *store.Store, r *ariesk.Ramifier, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	idx := ariesk.NewGridIndex(s.Meta.D, s.Meta.BoxSide)
	idx.Restore(s.Centroids())
	return &Server{
		Store:    s,
		Ramifier: r,
		Index:    idx,
		Picker:   ariesk.ParameterPicker{RamDim: s.Meta.D, KLen: s.Meta.K, SubKLen: ariesk.SubKmerLength},
		Logger:   logger,
	}
}

// network picks "unix" for a path-shaped address (one containing a slash)
// and "tcp" otherwise, matching SPEC_FULL.md §4.J's note that the request
// socket may be TCP or a filesystem unix socket.
func network(addr string) string {
	if strings.ContainsRune(addr, '/') {
		return "unix"
	}
	return "tcp"
}

// ListenAndServe opens a listener at addr and serves connections one at a
// time, each to completion, until a shutdown request is received or the
// listener is closed. It removes a stale unix socket file at addr before
// binding, mirroring the teacher's habit of clearing leftover state before
// opening a fresh resource.
func (s *Server) ListenAndServe(addr string) error {
	netw := network(addr)
	if netw == "unix" {
		_ = os.Remove(addr)
	}
	ln, err := net.Listen(netw, addr)
	if err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "listening on %s", addr)
	}
	defer ln.Close()
	s.Logger.Printf("ariesk server listening on %s (%s)", addr, netw)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return ariesk.Errorf(ariesk.StorageError, err, "accepting connection")
		}
		shutdown := s.serveConn(conn)
		if shutdown {
			return nil
		}
	}
}

// serveConn services every request on conn in order, one at a time, until
// the client disconnects or sends a shutdown request. It returns true when
// a shutdown request was received, signalling the caller to stop serving
// entirely.
func (s *Server) serveConn(conn net.Conn) (shutdown bool) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var req Request
		dec := json.NewDecoder(strings.NewReader(string(line)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			if werr := enc.Encode(errReply("malformed JSON request: %v", err)); werr != nil {
				s.Logger.Printf("write failed after client disconnect: %v", werr)
				return false
			}
			continue
		}

		switch req.Type {
		case "handshake":
			if err := enc.Encode(Reply{Type: "handshake"}); err != nil {
				s.Logger.Printf("write failed after client disconnect: %v", err)
				return false
			}
		case "shutdown":
			return true
		case "search":
			start := time.Now()
			reply := s.handleSearch(req)
			s.Logger.Printf("search %s completed in %s", req.QueryType, time.Since(start))
			if err := enc.Encode(reply); err != nil {
				s.Logger.Printf("write failed after client disconnect: %v", err)
				return false
			}
		default:
			if err := enc.Encode(errReply("unknown request type %q", req.Type)); err != nil {
				s.Logger.Printf("write failed after client disconnect: %v", err)
				return false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		s.Logger.Printf("connection read error: %v", err)
	}
	return false
}

// handleSearch dispatches a "search" request to its sequence, file, or
// contig handling, per query_type.
func (s *Server) handleSearch(req Request) Reply {
	switch req.QueryType {
	case "sequence":
		return s.searchSequence(req)
	case "file":
		return s.searchFile(req)
	case "contig", "":
		// A query_type-less search request is the long-query contig form:
		// §4.J's table lists it by its distinguishing fields (radius,
		// kmer_fraction, seq_identity) rather than a query_type tag.
		if req.Radius != nil && req.KmerFraction != nil && req.SeqIdentity != nil {
			return s.searchContig(req)
		}
		return errReply("search request missing query_type and contig fields")
	default:
		return errReply("unknown query_type %q", req.QueryType)
	}
}

func parseInnerMetric(name string) (ariesk.InnerMetric, error) {
	switch name {
	case "hamming":
		return ariesk.MetricHamming, nil
	case "needle":
		return ariesk.MetricNeedle, nil
	case "none":
		return ariesk.MetricNone, nil
	default:
		return 0, fmt.Errorf("unknown inner_metric %q", name)
	}
}

// resolveMaxFilterMisses applies §4.J's auto-picking: when the client omits
// max_filter_misses, consult the (sub_k, k) minimum-filter-overlap table to
// recommend one from the inner radius, expressed as a diff rate. An unknown
// edit count falls back to the table's -1 entry; an unknown (sub_k, k) pair
// disables the pre-filter (-1). The (D, k) coarse-radius table is not
// consulted: outer_radius is always taken from the request.
func (s *Server) resolveMaxFilterMisses(req Request) int {
	if req.MaxFilterMisses != nil {
		return *req.MaxFilterMisses
	}
	diffRate := 0.0
	if req.InnerRadius != nil && s.Ramifier.K > 0 {
		diffRate = *req.InnerRadius / float64(s.Ramifier.K)
	}
	overlap := s.Picker.MinFilterOverlap(diffRate)
	if overlap < 0 {
		return -1
	}
	windows := s.Ramifier.K - ariesk.SubKmerLength + 1
	return windows - int(overlap*float64(windows))
}

// searchSequence runs coarse (and, unless search_mode is "coarse", inner)
// search for a single k-mer-length query and formats one result per line.
func (s *Server) searchSequence(req Request) Reply {
	if req.OuterRadius == nil || req.InnerRadius == nil {
		return errReply("search(sequence) requires outer_radius and inner_radius")
	}
	km, err := ariesk.EncodeKmer(req.Query)
	if err != nil {
		return errReply("invalid query k-mer: %v", err)
	}
	if km.Len != s.Ramifier.K {
		return errReply("query length %d does not match database k=%d", km.Len, s.Ramifier.K)
	}
	vec, err := s.Ramifier.Ramify(ariesk.Canonical(km))
	if err != nil {
		return errReply("ramifying query: %v", err)
	}
	candidates := ariesk.CoarseSearch(s.Index, vec, *req.OuterRadius)

	if req.SearchMode == "coarse" {
		lines := make([]string, len(candidates))
		for i, id := range candidates {
			lines[i] = strconv.FormatInt(id, 10)
		}
		return Reply{Type: "search", Results: strings.Join(lines, "\n")}
	}

	metric, err := parseInnerMetric(req.InnerMetric)
	if err != nil {
		return errReply("%v", err)
	}
	maxFilterMisses := s.resolveMaxFilterMisses(req)
	matches, err := ariesk.InnerSearch(s.Store, candidates, req.Query, *req.InnerRadius, metric, maxFilterMisses)
	if err != nil {
		return errReply("inner search: %v", err)
	}
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = ariesk.DecodeKmer(m.Member.Kmer)
	}
	return Reply{Type: "search", Results: strings.Join(lines, "\n")}
}

// searchFile reads one query sequence per line from req.Query (a path),
// runs the same sequence search as searchSequence for each, and writes the
// results to req.ResultFile, replying "DONE" once every write is flushed.
func (s *Server) searchFile(req Request) Reply {
	if req.ResultFile == "" {
		return errReply("search(file) requires result_file")
	}
	in, err := os.Open(req.Query)
	if err != nil {
		return errReply("opening query file: %v", err)
	}
	defer in.Close()

	out, err := os.Create(req.ResultFile)
	if err != nil {
		return errReply("creating result file: %v", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sub := req
		sub.Query = line
		reply := s.searchSequence(sub)
		if reply.Type == "error" {
			fmt.Fprintf(w, "ERROR %s: %s\n", line, reply.Error)
			continue
		}
		fmt.Fprintln(w, reply.Results)
	}
	if err := scanner.Err(); err != nil {
		return errReply("reading query file: %v", err)
	}
	if err := w.Flush(); err != nil {
		return errReply("flushing results: %v", err)
	}
	if err := out.Sync(); err != nil {
		return errReply("syncing results: %v", err)
	}
	return Reply{Type: "search", Results: "DONE"}
}

// searchContig runs seed-and-extend contig search and formats one
// "score genome contig offset" result per line, descending by score as
// seedextend.Search already orders them.
func (s *Server) searchContig(req Request) Reply {
	opts := seedextend.Options{
		Radius:          *req.Radius,
		MaxGap:          2 * s.Ramifier.K,
		KmerFraction:    *req.KmerFraction,
		SeqIdentity:     *req.SeqIdentity,
		ExtensionMargin: s.Ramifier.K,
	}
	intervals, err := seedextend.Search(s.Store, s.Store, s.Ramifier, s.Index, req.Query, opts)
	if err != nil {
		return errReply("contig search: %v", err)
	}
	lines := make([]string, len(intervals))
	for i, iv := range intervals {
		lines[i] = fmt.Sprintf("%.4f\t%s\t%s\t%d", iv.Score, iv.GenomeName, iv.ContigName, iv.TStart)
	}
	return Reply{Type: "search", Results: strings.Join(lines, "\n")}
}

// Client is a minimal request/reply client used by the CLI's
// "search shutdown-server" verb and by tests driving the server end to end.
type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

// Dial connects to a running server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial(network(addr), addr)
	if err != nil {
		return nil, ariesk.Errorf(ariesk.StorageError, err, "dialing %s", addr)
	}
	return &Client{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Handshake sends a handshake request and waits for the reply.
func (c *Client) Handshake() error {
	if err := c.enc.Encode(Request{Type: "handshake"}); err != nil {
		return err
	}
	var reply Reply
	return c.dec.Decode(&reply)
}

// Shutdown sends a shutdown request. No reply is expected.
func (c *Client) Shutdown() error {
	return c.enc.Encode(Request{Type: "shutdown"})
}

// Search sends req and returns the decoded reply.
func (c *Client) Search(req Request) (Reply, error) {
	req.Type = "search"
	if err := c.enc.Encode(req); err != nil {
		return Reply{}, err
	}
	var reply Reply
	if err := c.dec.Decode(&reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

var _ io.Closer = (*Client)(nil)
