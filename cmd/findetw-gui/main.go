// Package main provides the findetw GUI application.
package main

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/ZacharyZcR/findetw/internal/cli"
	"github.com/ZacharyZcR/findetw/internal/guid"
	"github.com/ZacharyZcR/findetw/internal/scan"
	"github.com/ZacharyZcR/findetw/internal/search"
)

func main() {
	myApp := app.New()
	myWindow := myApp.NewWindow("FindETW - ETW提供程序GUID查找工具")
	myWindow.Resize(fyne.NewSize(900, 700))

	// GUID
	guidEntry := widget.NewEntry()
	guidEntry.SetPlaceHolder("{f4e1897c-bb5d-5668-f1d8-040f4d8dd344}")

	// Search path
	pathEntry := widget.NewEntry()
	pathEntry.SetPlaceHolder("选择PE文件或目录...")

	workersEntry := widget.NewEntry()
	workersEntry.SetText(strconv.Itoa(runtime.NumCPU()))

	// Scan output
	output := widget.NewMultiLineEntry()
	output.SetPlaceHolder("扫描结果将显示在这里...")
	output.Disable()

	// Status label
	statusLabel := widget.NewLabel("就绪")

	fileButton := widget.NewButton("选择文件", func() {
		dialog.ShowFileOpen(func(file fyne.URIReadCloser, err error) {
			if err != nil || file == nil {
				return
			}
			defer func() { _ = file.Close() }()
			pathEntry.SetText(file.URI().Path())
		}, myWindow)
	})

	folderButton := widget.NewButton("选择目录", func() {
		dialog.ShowFolderOpen(func(dir fyne.ListableURI, err error) {
			if err != nil || dir == nil {
				return
			}
			pathEntry.SetText(dir.Path())
		}, myWindow)
	})

	var scanButton *widget.Button
	scanButton = widget.NewButton("扫描", func() {
		if guidEntry.Text == "" || pathEntry.Text == "" {
			dialog.ShowError(fmt.Errorf("请输入GUID并选择搜索路径"), myWindow)
			return
		}
		workers, err := strconv.Atoi(workersEntry.Text)
		if err != nil || workers < 1 {
			dialog.ShowError(fmt.Errorf("并发数必须是正整数"), myWindow)
			return
		}

		statusLabel.SetText("正在扫描...")
		scanButton.Disable()
		go func() {
			result, total, err := findReferences(guidEntry.Text, pathEntry.Text, workers)
			fyne.Do(func() {
				scanButton.Enable()
				if err != nil {
					dialog.ShowError(err, myWindow)
					statusLabel.SetText("扫描失败")
					return
				}
				output.SetText(result)
				statusLabel.SetText(fmt.Sprintf("扫描完成，共 %d 处引用", total))
			})
		}()
	})

	// Layout
	pathBox := container.NewBorder(nil, nil, nil, container.NewHBox(fileButton, folderButton), pathEntry)

	mainContent := container.NewBorder(
		container.NewVBox(
			widget.NewLabel("提供程序GUID:"),
			guidEntry,
			widget.NewLabel("搜索路径:"),
			pathBox,
			container.NewGridWithColumns(2,
				widget.NewLabel("并发数:"),
				workersEntry,
			),
			widget.NewSeparator(),
			scanButton,
		),
		container.NewVBox(
			widget.NewSeparator(),
			statusLabel,
		),
		nil,
		nil,
		container.NewVScroll(output),
	)

	myWindow.SetContent(mainContent)
	myWindow.ShowAndRun()
}

// findReferences runs a scan and renders the text report.
func findReferences(guidText, root string, workers int) (string, int, error) {
	raw, err := guid.Parse(guidText)
	if err != nil {
		return "", 0, err
	}
	pattern, err := search.New(raw)
	if err != nil {
		return "", 0, err
	}

	var out bytes.Buffer
	reporter := cli.NewReporter(&out, guid.String(raw))
	reporter.SetNoColor(true)

	opts := scan.DefaultOptions()
	opts.Workers = workers
	opts.OnStart = reporter.PrintStart
	opts.OnResult = reporter.PrintResult

	summary, err := scan.Run(context.Background(), root, pattern, opts)
	if err != nil {
		return "", 0, err
	}
	reporter.PrintSummary(summary)
	return out.String(), summary.Total, nil
}
