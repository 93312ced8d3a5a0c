package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/signal-hunter/internal/model"
)

const (
	minNarrative = 3
	maxNarrative = 8
	maxWhyNow    = 3
	maxHints     = 5
)

// A cases.Caser is stateful, so each call builds its own.
func title(s string) string { return cases.Title(language.English).String(s) }

func lower(s string) string { return cases.Lower(language.English).String(s) }

// angleTemplates are conversation starters per category; %s is the company.
var angleTemplates = map[model.SignalCategory]string{
	model.CategoryFundingCorporate:      "New capital usually comes with new targets at %s. Ask which initiatives the round is meant to fund.",
	model.CategoryLeadershipOrg:         "New leaders at %s tend to revisit vendors and processes in their first quarter. Offer a quick benchmark.",
	model.CategoryProductStrategy:       "%s is shipping something new. Ask what the launch changes for their go-to-market.",
	model.CategoryHiringTeam:            "%s is growing the team. Ask how they plan to ramp the new hires quickly.",
	model.CategoryExpansionPartnerships: "%s is expanding. Ask what the new markets or partners need from them operationally.",
	model.CategoryTechnologyAdoption:    "%s is changing its stack. Ask what the migration is supposed to unlock.",
	model.CategoryRiskCompliance:        "%s has compliance work on its plate. Ask how they are resourcing it.",
}

// assembleInput is everything needed to build one lead.
type assembleInput struct {
	RunID        string
	UserID       string
	Mode         model.RunModeKind
	Candidate    model.CandidateCompany
	Report       *model.SignalMatchReport
	Signals      []model.SignalDefinition
	Chunks       []model.EvidenceChunk
	ICP          model.ICP
	Score        int
	TriggerFloor float64
	SenderName   string
	Now          time.Time
}

// leadID is stable for a domain within a run; a run never assembles the
// same domain twice.
func leadID(runID, domain string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("lead:"+runID+"/"+domain)).String()
}

// assembleLead builds the lead deterministically from its inputs.
func assembleLead(in assembleInput) model.LeadRecord {
	name := in.Candidate.CompanyName
	if name == "" {
		name = companyNameFromDomain(in.Candidate.Domain)
	}
	triggered := triggeredSignals(in.Report, in.Signals, in.TriggerFloor)

	lead := model.LeadRecord{
		ID:                  leadID(in.RunID, in.Candidate.Domain),
		UserID:              in.UserID,
		RunID:               in.RunID,
		Mode:                in.Mode,
		CompanyName:         name,
		Domain:              in.Candidate.Domain,
		SourceURL:           in.Candidate.SourceURL,
		Score:               in.Score,
		OverallConfidence:   in.Report.OverallConfidence,
		TriggeredSignals:    triggered,
		Matches:             in.Report.Matches,
		WhyNow:              whyNow(name, triggered, in.ICP),
		Angles:              angles(name, triggered),
		LinkedInSearchHints: linkedInHints(name, in.ICP.Roles),
		Status:              model.LeadStatusNew,
		CreatedAt:           in.Now,
		UpdatedAt:           in.Now,
	}
	lead.EvidenceURLs, lead.EvidenceSnippets = citedEvidence(in.Report, triggered, in.Candidate)
	lead.Narrative = narrative(name, in, triggered)
	lead.OpenerShort, lead.OpenerMedium = openers(name, in.SenderName, triggered, in.ICP)
	return lead
}

// triggeredSignals are the yes answers of non-disqualifier signals at or
// above floor, heaviest first.
func triggeredSignals(report *model.SignalMatchReport, signals []model.SignalDefinition, floor float64) []model.TriggeredSignal {
	var out []model.TriggeredSignal
	for _, s := range signals {
		if s.IsDisqualifier {
			continue
		}
		m, ok := report.Match(s.ID)
		if !ok || m.Result != model.ResultYes || m.Confidence < floor {
			continue
		}
		out = append(out, model.TriggeredSignal{
			SignalID:     s.ID,
			Name:         s.Name,
			Category:     s.Category,
			Weight:       s.Weight,
			Confidence:   m.Confidence,
			EvidenceURLs: m.EvidenceURLs,
			Reasoning:    m.Reasoning,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func whyNow(name string, triggered []model.TriggeredSignal, icp model.ICP) string {
	if len(triggered) == 0 {
		return fmt.Sprintf("%s fits the target profile (%s) but shows no strong timing signal yet.", name, icp.Summary())
	}
	top := triggered[:min(len(triggered), maxWhyNow)]
	names := make([]string, len(top))
	for i, t := range top {
		names[i] = lower(t.Name)
	}
	return fmt.Sprintf("%s is showing %s, which makes now a good time to reach out.", name, joinList(names))
}

func angles(name string, triggered []model.TriggeredSignal) []model.Angle {
	var out []model.Angle
	for _, t := range triggered {
		tmpl, ok := angleTemplates[t.Category]
		if !ok || len(t.EvidenceURLs) == 0 {
			continue
		}
		out = append(out, model.Angle{
			Text:        fmt.Sprintf(tmpl, name),
			EvidenceURL: t.EvidenceURLs[0],
			SignalID:    t.SignalID,
		})
	}
	return out
}

func citedEvidence(report *model.SignalMatchReport, triggered []model.TriggeredSignal, cand model.CandidateCompany) ([]string, []string) {
	var urls, snippets []string
	for _, t := range triggered {
		urls = appendUnique(urls, t.EvidenceURLs...)
		if m, ok := report.Match(t.SignalID); ok {
			for _, s := range m.EvidenceSnippets {
				if len(snippets) < maxNarrative {
					snippets = appendUnique(snippets, s)
				}
			}
		}
	}
	if len(urls) == 0 && cand.SourceURL != "" {
		urls = []string{cand.SourceURL}
	}
	return urls, snippets
}

// narrative is 3 to 8 bullets, each citing a source where one exists.
func narrative(name string, in assembleInput, triggered []model.TriggeredSignal) []string {
	var out []string
	for _, t := range triggered {
		line := fmt.Sprintf("%s (%.0f%% confidence)", title(t.Name), t.Confidence*100)
		if t.Reasoning != "" {
			line += ": " + t.Reasoning
		}
		if len(t.EvidenceURLs) > 0 {
			line += " [" + t.EvidenceURLs[0] + "]"
		}
		out = append(out, line)
		if len(out) == maxNarrative-minNarrative {
			break
		}
	}

	for _, ch := range in.Chunks {
		if len(out) >= maxNarrative-2 {
			break
		}
		if ch.Snippet == "" || cited(triggered, ch.URL) {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s [%s]", title(string(ch.SourceType)), truncateRunes(ch.Snippet, 200), ch.URL))
	}

	yes := 0
	for _, m := range in.Report.Matches {
		if m.Result == model.ResultYes {
			yes++
		}
	}
	out = append(out,
		fmt.Sprintf("Signal score %d/100 with %.0f%% overall confidence; %d of %d signals answered yes.",
			in.Score, in.Report.OverallConfidence*100, yes, len(in.Report.Matches)),
		fmt.Sprintf("%s matches the target profile: %s.", name, in.ICP.Summary()),
	)
	if len(out) < minNarrative {
		src := in.Candidate.SourceURL
		if src == "" {
			src = homepage(in.Candidate.Domain)
		}
		out = append(out, fmt.Sprintf("Discovered via %s.", src))
	}
	return out[:min(len(out), maxNarrative)]
}

func cited(triggered []model.TriggeredSignal, u string) bool {
	for _, t := range triggered {
		for _, e := range t.EvidenceURLs {
			if e == u {
				return true
			}
		}
	}
	return false
}

func openers(name, sender string, triggered []model.TriggeredSignal, icp model.ICP) (string, string) {
	hook := "what your team is working on"
	if len(triggered) > 0 {
		hook = "the " + lower(triggered[0].Name)
	}
	short := fmt.Sprintf("Saw %s at %s. Curious how it is shaping priorities this quarter?", hook, name)

	intro := "Hi"
	if sender != "" {
		intro = fmt.Sprintf("Hi, %s here", sender)
	}
	audience := "teams like yours"
	if roles := model.NonBlank(icp.Roles); len(roles) > 0 {
		audience = roles[0] + "s"
	}
	medium := fmt.Sprintf("%s. I noticed %s at %s.", intro, hook, name)
	if len(triggered) > 1 {
		medium += fmt.Sprintf(" Together with the %s, it looks like a busy stretch.", lower(triggered[1].Name))
	}
	medium += fmt.Sprintf(" We help %s move faster in moments like this. Open to a 15 minute call next week?", audience)
	return short, medium
}

// linkedInHints are search strings for the people to contact.
func linkedInHints(name string, roles []string) []string {
	roles = model.NonBlank(roles)
	if len(roles) == 0 {
		roles = []string{"CEO", "Founder"}
	}
	out := make([]string, 0, min(len(roles), maxHints))
	for _, r := range roles {
		if len(out) == maxHints {
			break
		}
		out = append(out, fmt.Sprintf(`site:linkedin.com/in "%s" "%s"`, name, r))
	}
	return out
}

// companyNameFromDomain turns "acme-labs.io" into "Acme Labs".
func companyNameFromDomain(domain string) string {
	label, _, _ := strings.Cut(model.NormalizeDomain(domain), ".")
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	return title(label)
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
