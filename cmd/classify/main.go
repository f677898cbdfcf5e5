// Command classify runs the rule engine offline against headlines, without
// touching the database or Kafka. Useful for tuning rules.yaml: feed it a
// title (and optional summary) or a JSONL file of {"title","summary"} pairs
// and inspect the verdicts.
//
// Usage:
//
//	go run ./cmd/classify -title "Bão số 4 đổ bộ, 3 người chết ở Hà Tĩnh"
//	go run ./cmd/classify -rules custom_rules.yaml -input headlines.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/vietwatch/disaster-crawler/internal/classify"
)

type headline struct {
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

func main() {
	rulesFile := flag.String("rules", "", "rules YAML file (default: embedded rules)")
	title := flag.String("title", "", "single headline to classify")
	summary := flag.String("summary", "", "optional summary for -title")
	input := flag.String("input", "", "JSONL file of {\"title\",\"summary\"} pairs (- for stdin)")
	flag.Parse()

	if *title == "" && *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*rulesFile, *title, *summary, *input); code != 0 {
		os.Exit(code)
	}
}

func run(rulesFile, title, summary, input string) int {
	rules, err := classify.LoadRules(rulesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load rules: %v\n", err)
		return 1
	}
	classifier, err := classify.New(rules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: compile rules: %v\n", err)
		return 1
	}

	if title != "" {
		printVerdict(headline{Title: title, Summary: summary}, classifier.Classify(title, summary))
		return 0
	}

	lines, err := readHeadlines(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read input: %v\n", err)
		return 1
	}

	var accepted int
	for _, h := range lines {
		res := classifier.Classify(h.Title, h.Summary)
		printVerdict(h, res)
		if res.Accept {
			accepted++
		}
	}
	fmt.Printf("\n%d/%d accepted\n", accepted, len(lines))
	return 0
}

func readHeadlines(input string) ([]headline, error) {
	f := os.Stdin
	if input != "-" {
		var err error
		f, err = os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
	}

	var out []headline
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var h headline
		if err := json.Unmarshal(line, &h); err != nil {
			return nil, fmt.Errorf("line %d: %w", len(out)+1, err)
		}
		out = append(out, h)
	}
	return out, sc.Err()
}

func printVerdict(h headline, res classify.Result) {
	status := "\033[31mREJECT\033[0m"
	if res.Accept {
		status = "\033[32mACCEPT\033[0m"
	}
	fmt.Printf("%s  %s\n", status, h.Title)

	if !res.Accept {
		fmt.Printf("        reason: %s\n", res.Reason)
		return
	}

	fmt.Printf("        type=%s level=%d stage=%s red_alert=%v\n",
		res.DisasterType, res.RiskLevel, res.Stage, res.RedAlert)
	if res.Location.Province != "" {
		fmt.Printf("        province=%s", res.Location.Province)
		if res.Location.Commune != "" {
			fmt.Printf(" commune=%s", res.Location.Commune)
		}
		fmt.Println()
	}
	if res.Impact != (classify.Impact{}) {
		detail, _ := json.Marshal(res.Impact)
		fmt.Printf("        impact=%s\n", detail)
	}
	if len(res.AllHazards) > 1 {
		for _, hz := range res.AllHazards[1:] {
			fmt.Printf("        also: %s (level %d)\n", hz.Type, hz.Level)
		}
	}
}
