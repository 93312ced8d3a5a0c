// Package registry loads the buying-signal library and ICP definitions from
// Notion or from YAML files.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/pkg/notion"
)

// MaxWeight is the upper bound of a signal weight.
const MaxWeight = 10

// LoadSignalLibrary queries the Notion signal database for all active
// signals. Malformed rows are logged and skipped.
func LoadSignalLibrary(ctx context.Context, client notion.Client, dbID string) ([]model.SignalDefinition, error) {
	pages, err := notion.QueryActiveSignals(ctx, client, dbID)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load signal library")
	}

	var signals []model.SignalDefinition
	for _, p := range pages {
		s, err := parseSignalPage(p)
		if err != nil {
			zap.L().Warn("registry: skipping malformed signal page",
				zap.String("page_id", string(p.ID)),
				zap.Error(err),
			)
			continue
		}
		signals = append(signals, s)
	}

	if err := ValidateSignals(signals); err != nil {
		return nil, err
	}
	return signals, nil
}

func parseSignalPage(p notionapi.Page) (model.SignalDefinition, error) {
	s := model.SignalDefinition{Enabled: true}

	if prop, ok := p.Properties["Name"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			s.Name = plainText(tp.Title)
		}
	}

	if prop, ok := p.Properties["Key"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			s.ID = strings.TrimSpace(plainText(rtp.RichText))
		}
	}

	if prop, ok := p.Properties["Question"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			s.Question = plainText(rtp.RichText)
		}
	}

	if prop, ok := p.Properties["Category"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			s.Category = model.SignalCategory(sp.Select.Name)
		}
	}

	if prop, ok := p.Properties["Priority"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			s.Priority = model.Priority(strings.ToLower(sp.Select.Name))
		}
	}

	if prop, ok := p.Properties["Weight"]; ok {
		if np, ok := prop.(*notionapi.NumberProperty); ok {
			s.Weight = np.Number
		}
	}

	// One template per line.
	if prop, ok := p.Properties["QueryTemplates"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			for _, line := range strings.Split(plainText(rtp.RichText), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					s.QueryTemplates = append(s.QueryTemplates, line)
				}
			}
		}
	}

	if prop, ok := p.Properties["AcceptedSources"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				s.AcceptedSources = append(s.AcceptedSources, model.SourceType(strings.ToLower(opt.Name)))
			}
		}
	}

	if prop, ok := p.Properties["Disqualifier"]; ok {
		if cp, ok := prop.(*notionapi.CheckboxProperty); ok {
			s.IsDisqualifier = cp.Checkbox
		}
	}

	if s.ID == "" {
		s.ID = string(p.ID)
	}
	if s.Name == "" {
		return s, eris.New("missing Name property")
	}
	if s.Question == "" {
		return s, eris.New("missing Question property")
	}
	return normalizeSignal(s), nil
}

// normalizeSignal fills defaults shared by every source.
func normalizeSignal(s model.SignalDefinition) model.SignalDefinition {
	if s.ID == "" {
		s.ID = slug(s.Name)
	}
	if s.Priority == "" {
		s.Priority = model.PriorityMedium
	}
	if s.Category == model.CategoryDisqualifier {
		s.IsDisqualifier = true
	}
	return s
}

// ValidateSignals checks ids are unique and every field is within range.
func ValidateSignals(signals []model.SignalDefinition) error {
	seen := make(map[string]bool, len(signals))
	for _, s := range signals {
		switch {
		case s.ID == "":
			return eris.Errorf("registry: signal %q has no id", s.Name)
		case seen[s.ID]:
			return eris.Errorf("registry: duplicate signal id %q", s.ID)
		case !s.Category.Valid():
			return eris.Errorf("registry: signal %q has unknown category %q", s.ID, s.Category)
		case s.Priority.Rank() == 0:
			return eris.Errorf("registry: signal %q has unknown priority %q", s.ID, s.Priority)
		case s.Weight < 0 || s.Weight > MaxWeight:
			return eris.Errorf("registry: signal %q weight %v outside [0,%d]", s.ID, s.Weight, MaxWeight)
		case strings.TrimSpace(s.Question) == "":
			return eris.Errorf("registry: signal %q has no question", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// plainText concatenates the plain_text values from a slice of RichText.
func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

func slug(name string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		case !lastSep:
			b.WriteByte('_')
			lastSep = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// describe is used in log lines.
func describe(signals []model.SignalDefinition) string {
	enabled := model.EnabledSignals(signals)
	return fmt.Sprintf("%d signals (%d enabled)", len(signals), len(enabled))
}
