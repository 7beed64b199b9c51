package export

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// PDFRenderer prints document HTML with headless Chrome on A4 paper
type PDFRenderer struct {
	ChromePath string
	Timeout    time.Duration
}

func NewPDFRenderer(chromePath string) *PDFRenderer {
	return &PDFRenderer{ChromePath: chromePath, Timeout: 60 * time.Second}
}

// A4 in inches; 3cm top/left and 2cm bottom/right margins
const (
	paperWidth   = 8.27
	paperHeight  = 11.69
	marginTop    = 1.18
	marginLeft   = 1.18
	marginBottom = 0.79
	marginRight  = 0.79
)

func (r *PDFRenderer) Render(ctx context.Context, title, body string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if r.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.ChromePath))
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	content := WrapHTML(title, body)
	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, content).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPaperWidth(paperWidth).
				WithPaperHeight(paperHeight).
				WithMarginTop(marginTop).
				WithMarginBottom(marginBottom).
				WithMarginLeft(marginLeft).
				WithMarginRight(marginRight).
				WithPrintBackground(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return pdf, nil
}

// WrapHTML embeds a sanitized body in a printable page
func WrapHTML(title, body string) string {
	return `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="UTF-8">
<title>` + html.EscapeString(title) + `</title>
<style>
body { font-family: "Times New Roman", Times, serif; font-size: 12pt; line-height: 1.5; text-align: justify; }
h1, h2, h3 { text-align: center; font-size: 12pt; text-transform: uppercase; }
p { text-indent: 2.5cm; margin: 0 0 12pt 0; }
</style>
</head>
<body>
<h1>` + html.EscapeString(title) + `</h1>
` + body + `
</body>
</html>`
}
