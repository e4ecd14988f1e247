// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"golang.org/x/net/html"

	"search-agent/internal/tool"
	perrors "search-agent/pkg/errors"
	"search-agent/pkg/retry"
)

const truncatedMarker = "\n[TRUNCATED]"

// downloadFactor 未配置 MaxDownloadBytes 时下载上限为 MaxBytes 的倍数
const downloadFactor = 16

// BrowseConfig 网页抓取配置
type BrowseConfig struct {
	// MaxBytes 返回给模型的正文上限
	MaxBytes int
	// MaxDownloadBytes 响应体读取上限；超出的 HTML/文本被截断，PDF 直接报错
	MaxDownloadBytes int
	UserAgent        string
}

// BrowseTool browse_website：抓取单个网页或 PDF 并返回正文文本
type BrowseTool struct {
	cfg    BrowseConfig
	client *resty.Client
}

// NewBrowseTool 创建 browse_website 工具
func NewBrowseTool(cfg BrowseConfig) *BrowseTool {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 * 1024
	}
	if cfg.MaxDownloadBytes <= 0 {
		cfg.MaxDownloadBytes = downloadFactor * cfg.MaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; search-agent/1.0)"
	}
	client := resty.New().
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &BrowseTool{cfg: cfg, client: client}
}

// Spec 实现 tool.Tool
func (t *BrowseTool) Spec() tool.Spec {
	return tool.Spec{
		Name:       "browse_website",
		Capability: tool.CapabilityBrowse,
		Description: "Visit a URL and read its main text content. Use it after a search when the snippets are " +
			"not enough. Supports HTML pages and PDF documents.",
		Schema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.SchemaProperty{
				"url": {Type: "string", Description: "The absolute http(s) URL to visit.", Pattern: `^https?://`},
			},
			Required: []string{"url"},
		},
	}
}

// Execute 实现 tool.Tool
func (t *BrowseTool) Execute(ctx context.Context, args map[string]any) (tool.Output, error) {
	raw := tool.String(args, "url", "")
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return tool.Output{}, tool.Terminal("browse_website", perrors.KindInvalidArguments, "unsupported url %q", raw)
	}

	resp, err := t.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(u.String())
	if err != nil {
		if ctx.Err() != nil {
			return tool.Output{}, ctx.Err()
		}
		return tool.Output{}, perrors.WithKind(err, perrors.KindTransport)
	}
	rc := resp.RawBody()
	defer rc.Close()
	if resp.StatusCode() >= 400 {
		return tool.Output{}, &retry.HTTPStatusError{StatusCode: resp.StatusCode(), Message: resp.Status()}
	}

	body, err := io.ReadAll(io.LimitReader(rc, int64(t.cfg.MaxDownloadBytes)+1))
	if err != nil {
		if ctx.Err() != nil {
			return tool.Output{}, ctx.Err()
		}
		return tool.Output{}, perrors.WithKind(fmt.Errorf("read body: %w", err), perrors.KindTransport)
	}
	clipped := len(body) > t.cfg.MaxDownloadBytes
	if clipped {
		body = body[:t.cfg.MaxDownloadBytes]
	}

	contentType := strings.ToLower(resp.Header().Get("Content-Type"))
	var text string
	switch {
	case strings.Contains(contentType, "application/pdf") || bytes.HasPrefix(body, []byte("%PDF-")):
		if clipped {
			return tool.Output{}, tool.Terminal("browse_website", perrors.KindUpstream, "pdf larger than %d bytes", t.cfg.MaxDownloadBytes)
		}
		text, err = pdfText(body)
		if err != nil {
			return tool.Output{}, tool.Terminal("browse_website", perrors.KindUpstream, "extract pdf: %v", err)
		}
	case strings.Contains(contentType, "html") || contentType == "":
		text, err = htmlText(body)
		if err != nil {
			return tool.Output{}, tool.Terminal("browse_website", perrors.KindUpstream, "parse html: %v", err)
		}
	default:
		text = string(body)
	}

	if text == "" {
		text = fmt.Sprintf("The page at %s has no readable text content.", u.String())
	}
	if len(text) > t.cfg.MaxBytes {
		text = tool.Truncate(text, t.cfg.MaxBytes) + truncatedMarker
	} else if clipped {
		text = strings.ToValidUTF8(text, "") + truncatedMarker
	}
	return tool.Output{Text: text}, nil
}

// 不产出正文的标签
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true,
	"header": true, "footer": true, "svg": true, "iframe": true, "template": true,
}

// 块级标签结束时换行
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "blockquote": true, "table": true,
}

// htmlText 把 HTML 转为纯文本，标题放在首行
func htmlText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	var title string
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && n.FirstChild != nil && title == "" {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
			if skipTags[n.Data] {
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				b.WriteString(s)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines)+1)
	if title != "" {
		out = append(out, "Title: "+title)
	}
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}

// pdfText 按页提取 PDF 正文
func pdfText(data []byte) (string, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("page count: %w", err)
	}
	var buf strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return buf.String(), fmt.Errorf("page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return buf.String(), fmt.Errorf("extractor for page %d: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return buf.String(), fmt.Errorf("extract page %d: %w", i, err)
		}
		if text != "" {
			buf.WriteString(text)
			buf.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(buf.String()), nil
}
