package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jamesruggles/footprint/internal/database"
	"github.com/jamesruggles/footprint/internal/scanner"
)

type Generator struct {
	db *database.DB
}

func NewGenerator(db *database.DB) *Generator {
	return &Generator{db: db}
}

// GenerateMarkdown renders a scan's exposure summary as a markdown
// document: score and level, category breakdown, findings by provider,
// and the provider timeline.
func (g *Generator) GenerateMarkdown(ctx context.Context, scanID string) (string, error) {
	scan, err := g.db.GetScan(ctx, scanID)
	if err != nil {
		return "", fmt.Errorf("loading scan: %w", err)
	}
	if scan == nil {
		return "", fmt.Errorf("scan not found")
	}

	findings, err := g.db.ListFindingsByScan(ctx, scanID)
	if err != nil {
		return "", fmt.Errorf("listing findings: %w", err)
	}
	events, err := g.db.ListScanEvents(ctx, scanID)
	if err != nil {
		return "", fmt.Errorf("listing events: %w", err)
	}

	exposure := scanner.CalculateExposureScore(findings)

	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Exposure Report: %s\n\n", scan.TargetValue))
	b.WriteString(fmt.Sprintf("**Generated:** %s  \n", time.Now().Format("January 2, 2006 15:04:05 MST")))
	b.WriteString(fmt.Sprintf("**Target type:** %s  \n", scan.TargetType))
	b.WriteString(fmt.Sprintf("**Scan status:** %s  \n\n", scan.Status))

	// Score
	b.WriteString("## Exposure Score\n\n")
	b.WriteString(fmt.Sprintf("**%d / 100** (%s)\n\n", exposure.Score, exposure.Level))
	b.WriteString(exposure.Insight + "\n\n")

	b.WriteString("| Category | Detected | Score |\n")
	b.WriteString("|---|---|---|\n")
	for _, cat := range exposure.Categories {
		detected := "no"
		if cat.Detected {
			detected = "yes"
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %.0f |\n", cat.Category, detected, cat.Score))
	}
	b.WriteString("\n")

	// Findings grouped by provider
	b.WriteString("## Findings\n\n")
	if len(findings) == 0 {
		b.WriteString("No findings were recorded for this scan.\n\n")
	} else {
		byProvider := make(map[string][]database.Finding)
		var order []string
		for _, f := range findings {
			if _, seen := byProvider[f.Provider]; !seen {
				order = append(order, f.Provider)
			}
			byProvider[f.Provider] = append(byProvider[f.Provider], f)
		}

		for _, name := range order {
			b.WriteString(fmt.Sprintf("### %s\n\n", name))
			b.WriteString("| Kind | Severity | Confidence | Evidence |\n")
			b.WriteString("|---|---|---|---|\n")
			for _, f := range byProvider[name] {
				var pairs []string
				for _, ev := range f.Evidence {
					val := ev.Value
					if len(val) > 60 {
						val = val[:60] + "..."
					}
					pairs = append(pairs, ev.Key+"="+val)
				}
				b.WriteString(fmt.Sprintf("| %s | %s | %.0f%% | %s |\n",
					f.Kind, f.Severity, f.Confidence*100, strings.Join(pairs, "; ")))
			}
			b.WriteString("\n")
		}
	}

	// Timeline appendix
	b.WriteString("## Appendix: Provider Timeline\n\n")
	b.WriteString("| Time | Provider | Stage | Status | Duration |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, e := range events {
		duration := "-"
		if e.DurationMs > 0 {
			duration = fmt.Sprintf("%dms", e.DurationMs)
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			e.CreatedAt.Format(time.RFC3339), e.Provider, e.Stage, e.Status, duration))
	}
	b.WriteString("\n")

	return b.String(), nil
}
