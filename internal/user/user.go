// Package user implements the User Model (C7): the caller-supplied
// descriptor plus the internal form the Evaluator actually consumes.
// UserInternal memoizes the lowercased field projections and parsed
// user-agent that user_field/ua_based conditions look up repeatedly
// across many rules within a single evaluation.
package user

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ua-parser/uap-go/uaparser"

	"github.com/statsig-io/go-server-core/internal/dynamic"
	"github.com/statsig-io/go-server-core/internal/hashing"
)

// uaParser is the process-wide lazily-initialized uap-go parser. Building
// it loads and compiles the bundled regex set once; every Internal.Agent
// call after the first reuses it.
var (
	uaParserOnce sync.Once
	uaParserInst *uaparser.Parser
)

func sharedUAParser() *uaparser.Parser {
	uaParserOnce.Do(func() {
		p, err := uaparser.NewFromSaved()
		if err != nil {
			p = &uaparser.Parser{}
		}
		uaParserInst = p
	})
	return uaParserInst
}

// StatsigEnvironment carries the tier set by the host's `environment`
// option (spec §6 configuration table).
type StatsigEnvironment struct {
	Tier string
}

// User is the caller-supplied descriptor (spec §3 "User / UserInternal").
type User struct {
	UserID             string
	CustomIDs          map[string]string
	Email              string
	IP                 string
	UserAgent          string
	Country            string
	Locale             string
	AppVersion         string
	Custom             map[string]dynamic.Value
	PrivateAttributes  map[string]dynamic.Value
	StatsigEnvironment StatsigEnvironment
}

// Internal is the derived, evaluation-ready form of a User: lowercased
// field lookups (LowerField) are resolved once per field name and
// cached, and the user-agent string is parsed lazily at most once.
type Internal struct {
	user User

	mu        sync.Mutex
	lowerDone map[string]bool
	lowerVal  map[string]string

	uaDone       bool
	ua           *uaparser.Client
	uaParsingOff bool
	fpDone       bool
	fp           string
}

// NewInternal wraps u for evaluation.
func NewInternal(u User) *Internal {
	return &Internal{
		user:      u,
		lowerDone: make(map[string]bool),
		lowerVal:  make(map[string]string),
	}
}

// User returns the wrapped descriptor.
func (in *Internal) User() User { return in.user }

// UnitID returns the id used for bucketing/id-list membership under the
// given idType: "userID" (the default) maps to UserID, anything else is
// looked up in CustomIDs.
func (in *Internal) UnitID(idType string) string {
	if idType == "" || strings.EqualFold(idType, "userID") {
		return in.user.UserID
	}
	for k, v := range in.user.CustomIDs {
		if strings.EqualFold(k, idType) {
			return v
		}
	}
	return ""
}

// Field resolves a user_field condition's `field` name against the
// built-in fields first, then Custom, then PrivateAttributes.
func (in *Internal) Field(name string) (dynamic.Value, bool) {
	switch strings.ToLower(name) {
	case "userid", "user_id":
		return dynamic.New(in.user.UserID), in.user.UserID != ""
	case "email":
		return dynamic.New(in.user.Email), in.user.Email != ""
	case "ip", "ipaddress", "ip_address":
		return dynamic.New(in.user.IP), in.user.IP != ""
	case "country":
		return dynamic.New(in.user.Country), in.user.Country != ""
	case "locale":
		return dynamic.New(in.user.Locale), in.user.Locale != ""
	case "appversion", "app_version":
		return dynamic.New(in.user.AppVersion), in.user.AppVersion != ""
	case "useragent", "user_agent":
		return dynamic.New(in.user.UserAgent), in.user.UserAgent != ""
	}
	if v, ok := in.user.Custom[name]; ok {
		return v, true
	}
	if v, ok := in.user.PrivateAttributes[name]; ok {
		return v, true
	}
	return dynamic.Value{}, false
}

// LowerField is Field's string projection, lowercased and memoized per
// field name — user_field conditions with string operators compare
// case-insensitively on the hot path.
func (in *Internal) LowerField(name string) (string, bool) {
	in.mu.Lock()
	if in.lowerDone[name] {
		v := in.lowerVal[name]
		in.mu.Unlock()
		return v, true
	}
	in.mu.Unlock()

	val, found := in.Field(name)
	if !found {
		in.mu.Lock()
		in.lowerDone[name] = false
		in.mu.Unlock()
		return "", false
	}
	s, ok := val.Lower()
	if !ok {
		return "", false
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.lowerDone[name] {
		in.lowerVal[name] = s
		in.lowerDone[name] = true
	}
	return in.lowerVal[name], ok
}

// DisableUAParsing skips user-agent parsing entirely (the
// disable_user_agent_parsing option): Agent then always returns an empty
// *uaparser.Client rather than invoking the bundled regex set.
func (in *Internal) DisableUAParsing() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.uaParsingOff = true
}

// Agent lazily parses UserAgent, memoizing the result — ua_based
// conditions across many rules in one evaluation parse it once.
func (in *Internal) Agent() *uaparser.Client {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.uaDone {
		if in.uaParsingOff {
			in.ua = &uaparser.Client{}
		} else {
			in.ua = sharedUAParser().Parse(in.user.UserAgent)
		}
		in.uaDone = true
	}
	return in.ua
}

// Environment returns the tier set on the user, falling back to def (the
// snapshot's default_environment) when the user did not set one.
func (in *Internal) Environment(def string) string {
	if in.user.StatsigEnvironment.Tier != "" {
		return in.user.StatsigEnvironment.Tier
	}
	return def
}

// Fingerprint is a stable, content-derived identifier for this user used
// as part of the GCIR cache key `(user_fingerprint, options_hash,
// snapshot_lcut)` (spec §4.10). It is deterministic across calls for
// users with identical content but does not attempt to be
// collision-proof against adversarial input — only a map/cache key.
func (in *Internal) Fingerprint() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.fpDone {
		return in.fp
	}
	in.fpDone = true

	parts := []string{"u:" + in.user.UserID, "e:" + in.Email0(), "c:" + in.Country0()}
	ids := make([]string, 0, len(in.user.CustomIDs))
	for k := range in.user.CustomIDs {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	for _, k := range ids {
		parts = append(parts, "id."+k+":"+in.user.CustomIDs[k])
	}
	in.fp = strconv.FormatUint(hashing.CacheKey(parts...), 36)
	return in.fp
}

func (in *Internal) Email0() string   { return in.user.Email }
func (in *Internal) Country0() string { return in.user.Country }
