package workflow

import (
	"path/filepath"
	"strings"
)

// accountMarkers are account numbers whose statements use WorkflowA.
var accountMarkers = []string{"4103", "4355", "10377"}

// bankMarkers are bank or client names whose statements use WorkflowB.
var bankMarkers = []string{"servima", "scotia", "mato"}

// Select picks the workflow for a ledger pair from side-identifying hints,
// usually the bank statement filename. Account markers win over bank
// markers; with no marker the result is KindA.
func Select(hints ...string) Kind {
	names := make([]string, 0, len(hints))
	for _, h := range hints {
		if h = strings.TrimSpace(h); h != "" {
			names = append(names, strings.ToLower(filepath.Base(h)))
		}
	}

	for _, name := range names {
		for _, marker := range accountMarkers {
			if strings.Contains(name, marker) {
				return KindA
			}
		}
	}

	for _, name := range names {
		for _, marker := range bankMarkers {
			if strings.Contains(name, marker) {
				return KindB
			}
		}
	}

	return KindA
}

// Resolve turns a configured workflow choice into a Kind. An empty choice or
// "auto" defers to Select over hints.
func Resolve(choice string, hints ...string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(choice)) {
	case "", "auto":
		return Select(hints...), nil
	}
	return ParseKind(choice)
}
