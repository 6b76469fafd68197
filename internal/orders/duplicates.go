package orders

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/printhub/backoffice/internal/shared"
)

// DuplicateReport lists, per requested folder name, the recent orders that
// already contain it.
type DuplicateReport struct {
	WindowDays int                      `json:"window_days"`
	Matches    map[string][]FolderMatch `json:"matches"`
}

// HasDuplicates reports whether any requested folder was found.
func (r DuplicateReport) HasDuplicates() bool {
	for _, m := range r.Matches {
		if len(m) > 0 {
			return true
		}
	}
	return false
}

// NormalizeFolderName folds a folder name to its NFC form with surrounding
// whitespace trimmed and inner runs collapsed to one space.
func NormalizeFolderName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// FindDuplicates checks folder names against the client's non-cancelled
// orders within its duplicate window.
func (s *Service) FindDuplicates(ctx context.Context, req DuplicateCheckRequest) (DuplicateReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return DuplicateReport{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	client, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		return DuplicateReport{}, err
	}
	window := client.DuplicateWindow(s.cfg.DuplicateWindowDays)
	since := s.now().AddDate(0, 0, -window)

	recent, err := s.repo.RecentFolders(ctx, req.ClientID, since)
	if err != nil {
		return DuplicateReport{}, err
	}
	byName := make(map[string][]FolderMatch, len(recent))
	for _, m := range recent {
		key := NormalizeFolderName(m.FolderName)
		if key == "" {
			continue
		}
		byName[key] = append(byName[key], m)
	}

	report := DuplicateReport{WindowDays: window, Matches: make(map[string][]FolderMatch, len(req.FolderNames))}
	for _, name := range req.FolderNames {
		key := NormalizeFolderName(name)
		if key == "" {
			continue
		}
		report.Matches[name] = byName[key]
	}
	return report, nil
}
