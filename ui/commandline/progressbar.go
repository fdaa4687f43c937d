package commandline

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/dgemm/pkg/bench"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// SweepProgress displays a progress bar over the cases of a sweep, with a table of stats of the
// last case finished above it, redrawn in place.
//
// Updates are drawn asynchronously, so a slow terminal doesn't delay the benchmarks.
type SweepProgress struct {
	out   io.Writer
	start time.Time
	bar   *progressbar.ProgressBar
	best  map[string]float64

	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	linesPrinted     int
	updates          chan progressUpdate
	asyncUpdatesDone sync.WaitGroup
}

// progressUpdate is the pre-formatted contents of one redraw.
type progressUpdate struct {
	amount int
	rows   [][2]string
}

// NewSweepProgress creates a progress display for numCases cases, written to out.
// Call Update after each case (it can be used as the onDone callback of bench.Runner.Sweep) and
// Done at the end.
func NewSweepProgress(out io.Writer, numCases int) *SweepProgress {
	p := &SweepProgress{
		out:        out,
		start:      time.Now(),
		best:       make(map[string]float64),
		termenv:    termenv.NewOutput(out),
		statsStyle: lipgloss.NewStyle().PaddingLeft(8),
		updates:    make(chan progressUpdate, 100), // Large buffer so the sweep is not blocked.
	}
	p.bar = progressbar.NewOptions(numCases,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("cases"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(out),
	)
	p.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	p.asyncUpdatesDone.Add(1)
	go p.drawUpdates()
	return p
}

// Update reports that the case of the given result finished.
// It must not be called after Done.
func (p *SweepProgress) Update(result *bench.Result) {
	update := progressUpdate{amount: 1}
	update.rows = append(update.rows,
		[2]string{"Last case", result.Case.String()},
		[2]string{"Elapsed", FormatDuration(time.Since(p.start))})
	for _, timing := range result.Timings {
		p.best[timing.Kernel] = max(p.best[timing.Kernel], timing.GFlops)
		update.rows = append(update.rows, [2]string{
			timing.Kernel,
			fmt.Sprintf("%.2f GFLOP/s (best %.2f)", timing.GFlops, p.best[timing.Kernel]),
		})
	}
	update.rows = append(update.rows, [2]string{"Validation", Verdict(result)})
	p.updates <- update
}

// Done waits for the pending updates to be drawn.
func (p *SweepProgress) Done() {
	close(p.updates)
	p.asyncUpdatesDone.Wait()
	p.termenv.ShowCursor()
	_, _ = fmt.Fprintln(p.out)
}

func (p *SweepProgress) drawUpdates() {
	defer p.asyncUpdatesDone.Done()
	for update := range p.updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-p.updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		p.statsTable.Data(lgtable.NewStringData())
		for _, row := range update.rows {
			p.statsTable.Row(row[0], row[1])
		}
		rendered := p.statsStyle.Render(p.statsTable.String())

		// Clear the previous lines that will be overwritten.
		p.termenv.HideCursor()
		if p.linesPrinted > 0 {
			p.termenv.CursorPrevLine(p.linesPrinted)
		}
		_, _ = fmt.Fprintln(p.out, rendered)
		_ = p.bar.Add(amount) // Prints progress bar line.
		_, _ = fmt.Fprintln(p.out)
		p.linesPrinted = strings.Count(rendered, "\n") + 2
		p.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}
