// Package catalogsync 下载 PSV_GAMES/PSV_DLCS/PSV_THEMES 三张对照表并原子替换本地副本。
//
// 两种来源：
// - BaseURL：三张表直接位于 <base>/<FileName>
// - IndexURL：一个 HTML 索引页，表的地址从 <a href> 中发现
//
// 每张表下载后必须能被 catalog.Parse 解析（含 "Content ID" 与 "zRIF" 列）才会写盘；
// 单张表失败不影响其它表。
package catalogsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/V3KPI/internal/catalog"
	"github.com/John-Robertt/V3KPI/internal/domain"
	"github.com/John-Robertt/V3KPI/internal/infra/cache"
)

// Source 描述对照表来源；BaseURL 与 IndexURL 必须且只能给一个。
type Source struct {
	BaseURL  string
	IndexURL string
}

func (s Source) validate() error {
	b := strings.TrimSpace(s.BaseURL)
	i := strings.TrimSpace(s.IndexURL)
	switch {
	case b == "" && i == "":
		return errors.New("必须指定 --base 或 --index")
	case b != "" && i != "":
		return errors.New("--base 与 --index 不能同时指定")
	}
	raw := b + i
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("非法 URL %q：%w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("只支持 http/https：%q", raw)
	}
	return nil
}

// HTTPStatusError 表示服务端返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d（%s）", e.StatusCode, e.URL)
}

// Result 是单张对照表的同步结果。
type Result struct {
	Category domain.Category
	URL      string
	Entries  int
	Bytes    int
	Written  bool
	Err      error
}

// Sync 按 primary -> addon -> theme 顺序同步三张表。
//
// 返回的 error 只表示整体无法开始（来源非法、索引页抓取失败）；
// 单表错误记录在对应 Result.Err 中。store.ReadOnly=true 时只下载与校验，不写盘。
func Sync(ctx context.Context, c *http.Client, src Source, store cache.Store) ([]Result, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	if err := src.validate(); err != nil {
		return nil, err
	}

	links, err := resolveLinks(ctx, c, src)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, domain.NumCategories)
	for _, cat := range domain.Categories {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		r := Result{Category: cat, URL: links[cat]}
		if r.URL == "" {
			r.Err = fmt.Errorf("索引页中未找到 %s", cat.FileName())
			out = append(out, r)
			continue
		}

		b, err := fetch(ctx, c, r.URL)
		if err != nil {
			r.Err = err
			out = append(out, r)
			continue
		}
		r.Bytes = len(b)

		parsed, err := catalog.Parse(bytes.NewReader(b), cat)
		if err != nil {
			r.Err = fmt.Errorf("下载内容不是有效的对照表：%w", err)
			out = append(out, r)
			continue
		}
		r.Entries = parsed.Len()

		if !store.ReadOnly {
			if err := store.WriteCatalog(cat, b); err != nil {
				r.Err = err
				out = append(out, r)
				continue
			}
			r.Written = true
		}
		out = append(out, r)
	}
	return out, nil
}

func resolveLinks(ctx context.Context, c *http.Client, src Source) (map[domain.Category]string, error) {
	if base := strings.TrimSpace(src.BaseURL); base != "" {
		links := make(map[domain.Category]string, domain.NumCategories)
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		for _, cat := range domain.Categories {
			links[cat] = resolveURL(base, cat.FileName())
		}
		return links, nil
	}

	index := strings.TrimSpace(src.IndexURL)
	html, err := fetch(ctx, c, index)
	if err != nil {
		return nil, fmt.Errorf("抓取索引页失败：%w", err)
	}
	return DiscoverLinks(html, index)
}

// DiscoverLinks 从索引页 HTML 中找出三张表的下载地址。
//
// 规则：<a href> 的路径末段（忽略大小写、解码百分号转义）等于表文件名即命中；同名取第一个。
// 未找到的分类不出现在返回的 map 中。
func DiscoverLinks(html []byte, pageURL string) (map[domain.Category]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	links := make(map[domain.Category]string, domain.NumCategories)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolveURL(pageURL, href)
		if abs == "" {
			return
		}
		u, err := url.Parse(abs)
		if err != nil {
			return
		}
		name := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
		for _, cat := range domain.Categories {
			if _, ok := links[cat]; ok {
				continue
			}
			if strings.EqualFold(name, cat.FileName()) {
				links[cat] = abs
			}
		}
	})
	return links, nil
}

func fetch(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ru, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return bu.ResolveReference(ru).String()
}
