package pcap

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoFrames is returned by SummarizeFile for captures without any
// EtherNet/IP traffic.
var ErrNoFrames = errors.New("no EtherNet/IP frames in capture")

// Summary provides high-level stats for a capture.
type Summary struct {
	Frames    int
	Requests  int
	Responses int
	Errors    int // replies with an error status
	Issues    int // records with at least one decode issue
	Sessions  int
	Commands  map[string]int
	Services  map[string]int // request labels
	Statuses  map[uint8]int  // general status of replies
	Paths     map[string]int
}

// Summarize aggregates records.
func Summarize(records []Record) *Summary {
	s := &Summary{
		Commands: make(map[string]int),
		Services: make(map[string]int),
		Statuses: make(map[uint8]int),
		Paths:    make(map[string]int),
	}
	sessions := make(map[uint32]bool)
	for _, r := range records {
		s.Frames++
		s.Commands[r.Command]++
		if len(r.Issues) > 0 {
			s.Issues++
		}
		if h := r.Frame.Encap.SessionID; h != 0 {
			sessions[h] = true
		}
		if !r.CIP {
			continue
		}
		if r.Response {
			s.Responses++
			s.Statuses[r.Status.Code]++
			if r.Status.Error {
				s.Errors++
			}
			continue
		}
		s.Requests++
		s.Services[r.Label]++
		if r.Path != "" {
			s.Paths[r.Path]++
		}
	}
	s.Sessions = len(sessions)
	return s
}

// SummarizeFile reads, decodes and summarizes a capture.
func SummarizeFile(path string) (*Summary, []Record, error) {
	frames, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(frames) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", path, ErrNoFrames)
	}
	records := Decode(frames)
	return Summarize(records), records, nil
}

// TopPaths returns up to max request paths, most frequent first.
func (s *Summary) TopPaths(max int) []string {
	return topKeys(s.Paths, max)
}

// TopServices returns up to max request labels, most frequent first.
func (s *Summary) TopServices(max int) []string {
	return topKeys(s.Services, max)
}

func topKeys(counts map[string]int, max int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if max > 0 && len(keys) > max {
		keys = keys[:max]
	}
	return keys
}
