package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/birthmark-protocol/birthmark/internal/fingerprint"
	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/pkg/color"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
)

// suggestionFor returns a follow-up hint for err, or "".
func suggestionFor(err error) string {
	switch {
	case errors.Is(err, errclass.ErrUnknownBackend):
		return color.Dim("  " + suggestName(backendName, ledger.KnownBackends(), "Known backends"))
	case errors.Is(err, errclass.ErrUnsupportedAlgorithm):
		return color.Dim("  " + fmt.Sprintf("Supported algorithms: %s", strings.Join(fingerprint.Supported(), ", ")))
	case errors.Is(err, errclass.ErrMissingConfiguration) && strings.Contains(err.Error(), "endpoint"):
		return color.Dim("  Pass --backend-opt endpoint=http://127.0.0.1:8645 or set backend.options.endpoint.")
	case errors.Is(err, errclass.ErrSubmissionFailed), errors.Is(err, errclass.ErrLookupFailed):
		return color.Dim("  Check that the ledger gateway is reachable; run with BIRTHMARK_LOGGING_LEVEL=debug for details.")
	case errors.Is(err, errNotFound), errors.Is(err, errNotAuthentic):
		return color.Dim("  The memory backend forgets records when the process exits; use \"birthmark serve\" with --backend gateway to share a ledger.")
	case errors.Is(err, errclass.ErrJournalChainBroken):
		return color.Dim("  The journal was edited or truncated at the reported line.")
	}
	return ""
}

// suggestName proposes close matches for query among candidates by
// prefix, then substring, falling back to listing them all.
func suggestName(query string, candidates []string, label string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	var matches []string
	if q != "" {
		for _, c := range candidates {
			if strings.HasPrefix(c, q) {
				matches = append(matches, c)
			}
		}
		if len(matches) == 0 {
			for _, c := range candidates {
				if strings.Contains(c, q) || strings.Contains(q, c) {
					matches = append(matches, c)
				}
			}
		}
	}

	if len(matches) > 0 {
		hint := "Did you mean"
		if len(matches) > 1 {
			hint += " one of"
		}
		return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
	}
	return fmt.Sprintf("%s: %s", label, strings.Join(candidates, ", "))
}
