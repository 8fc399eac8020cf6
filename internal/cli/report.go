// Package cli provides command-line interface utilities.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/findetw/internal/scan"
)

// Reporter formats and prints scan results.
type Reporter struct {
	out     io.Writer
	guid    string
	verbose bool
	noColor bool
}

// NewReporter creates a reporter writing to out for the given GUID text.
func NewReporter(out io.Writer, guid string) *Reporter {
	return &Reporter{out: out, guid: guid}
}

// SetVerbose enables verbose mode (show import table errors).
func (r *Reporter) SetVerbose(verbose bool) {
	r.verbose = verbose
}

// SetNoColor disables colour escapes regardless of the terminal.
func (r *Reporter) SetNoColor(noColor bool) {
	r.noColor = noColor
}

func (r *Reporter) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if r.noColor {
		c.DisableColor()
	}
	return c
}

// PrintStart prints the banner shown before a directory scan.
func (r *Reporter) PrintStart(files int) {
	cyan := r.color(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintf(r.out, "正在 %d 个文件中搜索 %s...\n", files, r.guid)
}

// PrintResult prints one file's report. Files without hits or errors print nothing.
func (r *Reporter) PrintResult(res scan.Result) {
	if res.Failed() {
		red := r.color(color.FgRed)
		_, _ = red.Fprintf(r.out, "  ✗ %s: %v\n", res.Path, res.Err)
		return
	}
	if len(res.Hits) == 0 {
		return
	}

	yellow := r.color(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintf(r.out, "\n目标文件: %s\n", res.Path)
	fmt.Fprintf(r.out, "  %-12s: %s\n", "GUID", r.guid)
	fmt.Fprintf(r.out, "  %-12s: %s\n", "架构", res.Architecture)
	if res.Subsystem != "" {
		fmt.Fprintf(r.out, "  %-12s: %s\n", "子系统", res.Subsystem)
	}
	fmt.Fprintf(r.out, "  %-12s: %d\n", "节区数量", res.Sections)
	r.printImports(res)

	green := r.color(color.FgGreen)
	_, _ = green.Fprintf(r.out, "  找到 %d 处引用:\n", len(res.Hits))
	for i, hit := range res.Hits {
		r.printHit(i+1, hit, res.ImageBase)
	}
}

func (r *Reporter) printImports(res scan.Result) {
	label := fmt.Sprintf("  %-12s: ", "注册API导入")
	switch res.Imports {
	case scan.ImportYes:
		fmt.Fprint(r.out, label)
		_, _ = r.color(color.FgGreen).Fprintln(r.out, res.Imports)
	case scan.ImportNo:
		fmt.Fprintf(r.out, "%s%s\n", label, res.Imports)
	default:
		fmt.Fprint(r.out, label)
		gray := r.color(color.FgHiBlack)
		if r.verbose && res.ImportErr != nil {
			_, _ = gray.Fprintf(r.out, "%s (%v)\n", res.Imports, res.ImportErr)
		} else {
			_, _ = gray.Fprintln(r.out, res.Imports)
		}
	}
}

func (r *Reporter) printHit(n int, hit scan.Hit, imageBase uint64) {
	fmt.Fprintf(r.out, "    %d) 偏移: 0x%x RVA: 0x%x", n, hit.Offset, hit.Address)

	if !hit.Resolved {
		// The fallback address and section carry no information.
		gray := r.color(color.FgHiBlack)
		_, _ = gray.Fprintf(r.out, " 节区: %s? (未解析: 偏移不在任何节区内)\n", hit.Section)
		return
	}

	if imageBase != 0 {
		fmt.Fprintf(r.out, " VA: 0x%x", imageBase+hit.Address)
	}
	fmt.Fprintf(r.out, " 节区: %s", hit.Section)
	if hit.Permissions != "" {
		permColor := r.color(color.FgWhite)
		if hit.Permissions == "RWX" {
			permColor = r.color(color.FgRed, color.Bold)
		}
		_, _ = permColor.Fprintf(r.out, " (%s)", hit.Permissions)
	}
	fmt.Fprintln(r.out)
}

// PrintSummary prints the run footer.
func (r *Reporter) PrintSummary(s *scan.Summary) {
	cyan := r.color(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintf(r.out, "\n总引用数: %d\n", s.Total)
	fmt.Fprintf(r.out, "扫描文件: %d/%d (失败 %d)\n", s.Scanned, s.Files, s.Failed)
	fmt.Fprintf(r.out, "耗时: %.4f 秒\n", s.Elapsed.Seconds())

	if s.Partial {
		red := r.color(color.FgRed, color.Bold)
		_, _ = red.Fprintln(r.out, "扫描被中断，结果不完整")
	}
}

type jsonResult struct {
	scan.Result
	Error       string `json:"error,omitempty"`
	ImportError string `json:"import_error,omitempty"`
}

type jsonReport struct {
	GUID    string       `json:"guid"`
	Root    string       `json:"root"`
	Files   int          `json:"files"`
	Scanned int          `json:"scanned"`
	Failed  int          `json:"failed"`
	Total   int          `json:"total_references"`
	Elapsed float64      `json:"elapsed_seconds"`
	Partial bool         `json:"partial"`
	Results []jsonResult `json:"results"`
}

// WriteJSON writes the whole run as one indented JSON document.
func WriteJSON(w io.Writer, guid string, s *scan.Summary) error {
	report := jsonReport{
		GUID:    guid,
		Root:    s.Root,
		Files:   s.Files,
		Scanned: s.Scanned,
		Failed:  s.Failed,
		Total:   s.Total,
		Elapsed: s.Elapsed.Seconds(),
		Partial: s.Partial,
		Results: make([]jsonResult, 0, len(s.Results)),
	}
	for _, res := range s.Results {
		jr := jsonResult{Result: res}
		if res.Err != nil {
			jr.Error = res.Err.Error()
		}
		if res.ImportErr != nil {
			jr.ImportError = res.ImportErr.Error()
		}
		report.Results = append(report.Results, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("写入JSON报告失败: %w", err)
	}
	return nil
}
