package registry

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/pkg/notion"
)

// fileSignal mirrors model.SignalDefinition with an optional enabled flag so
// that omitted entries default to enabled.
type fileSignal struct {
	model.SignalDefinition `yaml:",inline"`
	Enabled                *bool `yaml:"enabled"`
}

type signalFile struct {
	Signals []fileSignal `yaml:"signals"`
}

type userFile struct {
	UserID        string             `yaml:"user_id"`
	ICP           model.ICP          `yaml:"icp"`
	Signals       []fileSignal       `yaml:"signals"`
	Modes         model.ModeSettings `yaml:"modes"`
	MinConfidence *float64           `yaml:"min_confidence"`
	SenderName    string             `yaml:"sender_name"`
}

// LoadSignalsFromFile reads a YAML signal library from path.
func LoadSignalsFromFile(path string) ([]model.SignalDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read signals file")
	}

	var f signalFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal signals file")
	}

	signals := fromFile(f.Signals)
	if err := ValidateSignals(signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// LoadICPFromFile reads a YAML ICP. The document may be the ICP itself or
// carry it under an "icp" key.
func LoadICPFromFile(path string) (model.ICP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ICP{}, eris.Wrap(err, "registry: read icp file")
	}

	var wrapped struct {
		ICP *model.ICP `yaml:"icp"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return model.ICP{}, eris.Wrap(err, "registry: unmarshal icp file")
	}
	if wrapped.ICP != nil {
		return *wrapped.ICP, nil
	}

	var icp model.ICP
	if err := yaml.Unmarshal(data, &icp); err != nil {
		return model.ICP{}, eris.Wrap(err, "registry: unmarshal icp file")
	}
	return icp, nil
}

// LoadUserConfigFromFile reads a full user configuration (ICP, signals and
// mode settings) from a YAML file.
func LoadUserConfigFromFile(path string) (*model.UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read user config file")
	}

	var f userFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal user config file")
	}

	cfg := &model.UserConfig{
		UserID:        f.UserID,
		ICP:           f.ICP,
		Signals:       fromFile(f.Signals),
		Modes:         f.Modes,
		MinConfidence: f.MinConfidence,
		SenderName:    f.SenderName,
	}
	if err := ValidateSignals(cfg.Signals); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Source selects where the signal library comes from.
type Source struct {
	Notion   notion.Client
	NotionDB string
	Path     string
}

// ResolveSignals loads the library from Notion when configured, otherwise
// from the YAML file at Path.
func ResolveSignals(ctx context.Context, src Source) ([]model.SignalDefinition, error) {
	var (
		signals []model.SignalDefinition
		err     error
		from    string
	)
	switch {
	case src.Notion != nil && src.NotionDB != "":
		from = "notion"
		signals, err = LoadSignalLibrary(ctx, src.Notion, src.NotionDB)
	case src.Path != "":
		from = src.Path
		signals, err = LoadSignalsFromFile(src.Path)
	default:
		return nil, eris.New("registry: no signal library source configured")
	}
	if err != nil {
		return nil, err
	}
	zap.L().Info("registry: signal library loaded",
		zap.String("source", from),
		zap.String("summary", describe(signals)),
	)
	return signals, nil
}

func fromFile(in []fileSignal) []model.SignalDefinition {
	out := make([]model.SignalDefinition, 0, len(in))
	for _, fs := range in {
		s := fs.SignalDefinition
		s.Enabled = fs.Enabled == nil || *fs.Enabled
		out = append(out, normalizeSignal(s))
	}
	return out
}
