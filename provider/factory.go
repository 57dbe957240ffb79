package provider

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"showdown-pilot/damage"
	"showdown-pilot/data"
)

// Deps carries what the strategies may need. Unused fields are ignored.
type Deps struct {
	Dex       *data.Dex
	Estimator damage.Estimator
	LLM       LLMConfig
	LuaScript string
	Seed      int64
	In        io.Reader
	Out       io.Writer
	Hints     Publisher
	Logger    *slog.Logger
}

// New builds the provider named by kind. An llm provider without an API key
// degrades to smart.
func New(kind string, deps Deps) (DecisionProvider, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Estimator == nil {
		deps.Estimator = damage.NewCalculator(deps.Dex)
	}

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "smart":
		return NewSmart(deps.Dex, deps.Estimator), nil
	case "random":
		return NewRandom(deps.Seed), nil
	case "llm":
		if strings.TrimSpace(deps.LLM.APIKey) == "" {
			logger.Warn("llm provider has no api key, using smart", "model", deps.LLM.Model)
			return NewSmart(deps.Dex, deps.Estimator), nil
		}
		return NewLLM(deps.LLM), nil
	case "human":
		if deps.In == nil || deps.Out == nil {
			return nil, fmt.Errorf("human provider needs a terminal")
		}
		return NewHuman(deps.In, deps.Out, deps.Hints), nil
	case "lua":
		if deps.LuaScript == "" {
			return nil, fmt.Errorf("lua provider needs a script path")
		}
		return NewLuaFile(deps.LuaScript)
	}
	return nil, fmt.Errorf("unknown provider %q", kind)
}
