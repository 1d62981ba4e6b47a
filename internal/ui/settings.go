package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/session"
)

type settingField struct {
	usage string
	apply func(s *session.Settings, v float64)
}

// settingFields are the values editable from the dashboard prompt.
var settingFields = map[string]settingField{
	"size": {"position size USD", func(s *session.Settings, v float64) { s.PositionSizeUSD = v }},
	"tp":   {"take profit %", func(s *session.Settings, v float64) { s.TakeProfitPct = v }},
	"sl":   {"stop loss %", func(s *session.Settings, v float64) { s.StopLossPct = v }},
	"maxprice": {"max token price USD", func(s *session.Settings, v float64) {
		s.Filter.MaxPrice = v
	}},
	"minliq": {"min liquidity USD", func(s *session.Settings, v float64) {
		s.Filter.MinLiquidity = v
	}},
	"minvol": {"min 5m volume USD", func(s *session.Settings, v float64) {
		s.Filter.MinVolume5m = v
	}},
	"minbuys": {"min 5m buys", func(s *session.Settings, v float64) {
		s.Filter.MinBuys5m = int(v)
	}},
	"ratio": {"min buy/sell ratio", func(s *session.Settings, v float64) {
		s.Filter.MinBuySellRatio = v
	}},
	"maxage": {"max pair age seconds", func(s *session.Settings, v float64) {
		s.Filter.MaxPairAge = time.Duration(v * float64(time.Second))
	}},
}

// settingsUsage lists the accepted keys for the prompt placeholder.
func settingsUsage() string {
	keys := make([]string, 0, len(settingFields))
	for k := range settingFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, " ") + " (key=value ...)"
}

// applySettingsEdit parses "tp=40 sl=10" style input on top of current.
func applySettingsEdit(current session.Settings, input string) (session.Settings, error) {
	next := current
	next.Filter.RiskyWallets = append([]string(nil), current.Filter.RiskyWallets...)

	pairs := strings.Fields(input)
	if len(pairs) == 0 {
		return current, fmt.Errorf("nothing to change, use %s", settingsUsage())
	}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return current, fmt.Errorf("expected key=value, got %q", pair)
		}
		field, ok := settingFields[strings.ToLower(name)]
		if !ok {
			return current, fmt.Errorf("unknown setting %q", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return current, fmt.Errorf("invalid value for %s (%s): %q", name, field.usage, raw)
		}
		field.apply(&next, v)
	}
	return next, nil
}
