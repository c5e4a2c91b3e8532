// Command shadow_compare replays read requests against the legacy Express API
// and this one, then reports status and body differences. It exits non-zero
// when a critical endpoint diverges, so it can gate the cutover in CI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

// defaultTargets covers the read endpoints that must answer identically on
// both stacks when no targets file is supplied.
var defaultTargets = []target{
	{Method: "GET", Path: "/api/v1/records", Critical: true},
	{Method: "GET", Path: "/api/v1/records/summary", Critical: true},
	{Method: "GET", Path: "/health", Critical: false},
}

// volatileFields are stripped before body comparison because each stack stamps
// them with its own server clock.
var volatileFields = map[string]struct{}{
	"timestamp":  {},
	"created_at": {},
	"updated_at": {},
	"lastActive": {},
	"issued_at":  {},
	"expires_at": {},
}

type outcome int

const (
	outcomeMatch outcome = iota
	outcomeDiff
	outcomeError
)

func (o outcome) String() string {
	switch o {
	case outcomeMatch:
		return "OK"
	case outcomeDiff:
		return "DIFF"
	default:
		return "ERROR"
	}
}

type result struct {
	target         target
	outcome        outcome
	err            error
	goStatus       int
	legacyStatus   int
	statusMatch    bool
	bodyMatch      bool
	goDuration     time.Duration
	legacyDuration time.Duration
}

type runner struct {
	client     *http.Client
	goBase     string
	legacyBase string
	token      string
}

func main() {
	var (
		goBase      string
		legacyBase  string
		targetsPath string
		token       string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:3000", "Legacy Express API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&token, "token", "", "Bearer token sent to both APIs")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Printf("using default targets: %v", err)
		targets = defaultTargets
	}

	r := runner{
		client:     &http.Client{Timeout: timeout},
		goBase:     goBase,
		legacyBase: legacyBase,
		token:      token,
	}

	var breaking, optional int
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, tgt := range targets {
		res := r.compare(tgt)
		printResult(res)
		if res.outcome == outcomeMatch {
			continue
		}
		if tgt.Critical {
			breaking++
		} else {
			optional++
		}
	}

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		Targets []target `json:"targets"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func (r runner) compare(tgt target) result {
	res := result{target: tgt}

	goStatus, goBody, goDur, err := r.fetch(r.goBase, tgt)
	if err != nil {
		res.outcome = outcomeError
		res.err = fmt.Errorf("go request failed: %w", err)
		return res
	}
	legacyStatus, legacyBody, legacyDur, err := r.fetch(r.legacyBase, tgt)
	if err != nil {
		res.outcome = outcomeError
		res.err = fmt.Errorf("legacy request failed: %w", err)
		return res
	}

	res.goStatus = goStatus
	res.legacyStatus = legacyStatus
	res.goDuration = goDur
	res.legacyDuration = legacyDur
	res.statusMatch = goStatus == legacyStatus
	res.bodyMatch = bodiesEqual(goBody, legacyBody)
	if res.statusMatch && res.bodyMatch {
		res.outcome = outcomeMatch
	} else {
		res.outcome = outcomeDiff
	}
	return res
}

func (r runner) fetch(base string, tgt target) (int, []byte, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, time.Since(start), nil
}

// bodiesEqual compares raw bytes first, then falls back to a structural JSON
// comparison that ignores volatile fields and integer/float representation.
func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if json.Unmarshal(a, &aj) != nil || json.Unmarshal(b, &bj) != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k := range val {
			if _, volatile := volatileFields[k]; volatile {
				delete(val, k)
			}
		}
		for k, child := range val {
			normalize(&child)
			val[k] = child
		}
	case []interface{}:
		for i, child := range val {
			normalize(&child)
			val[i] = child
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printResult(res result) {
	fmt.Printf("[%s] %s %s\n", res.outcome, res.target.Method, res.target.Path)
	if res.err != nil {
		fmt.Printf("  Error: %v\n", res.err)
		return
	}
	fmt.Printf("  Go: %d in %s | Legacy: %d in %s\n", res.goStatus, res.goDuration, res.legacyStatus, res.legacyDuration)
	fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.statusMatch, res.bodyMatch, res.target.Critical)
}
