// Package api 封装东方财富股票列表与历史 K 线接口，含请求节流与 trace 日志。
// 重试不在本层做：上层 fetch 统一按配置做带抖动的重试。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"stockChipDip/internal/model"
	"stockChipDip/internal/trace"
)

// 东方财富接口地址
const (
	EastMoneyListURL  = "https://82.push2.eastmoney.com/api/qt/clist/get"
	EastMoneyKLineURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
)

// 全市场列表字段：f12 代码 f14 名称
const listFieldsBrief = "f12,f14"

// 列表市场参数：沪深主板、创业板、科创板、北交所（剔除在股票池过滤层做）
const listMarkets = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23,m:0+t:81+s:2048"

// 分页与超时
const (
	listPageSize       = 500
	defaultHTTPTimeout = 10 * time.Second
	maxRespLogLen      = 1200
)

// 请求头（模拟浏览器）
const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer        = "https://quote.eastmoney.com/"
	acceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
)

// Client 东方财富客户端。delayMin/delayMax（秒）为相邻请求间隔的抖动区间，防封。
type Client struct {
	HTTPClient *http.Client

	delayMin float64
	delayMax float64

	lastReqMu   sync.Mutex
	lastReqTime time.Time
}

// NewClient 创建客户端；delayMin/delayMax 为请求间隔抖动区间（秒），均为 0 时不节流。
func NewClient(delayMin, delayMax float64) *Client {
	if delayMax < delayMin {
		delayMax = delayMin
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: defaultHTTPTimeout},
		delayMin:   delayMin,
		delayMax:   delayMax,
	}
}

// paceRequest 距上次请求不足随机间隔时等待，等待期间响应 ctx 取消。
func (c *Client) paceRequest(ctx context.Context) {
	if c.delayMax <= 0 {
		return
	}
	gap := c.delayMin + rand.Float64()*(c.delayMax-c.delayMin)
	c.lastReqMu.Lock()
	elapsed := time.Since(c.lastReqTime)
	c.lastReqMu.Unlock()
	d := time.Duration(gap*float64(time.Second)) - elapsed
	if d > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
	c.lastReqMu.Lock()
	c.lastReqTime = time.Now()
	c.lastReqMu.Unlock()
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("api client is nil")
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	c.paceRequest(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", acceptLanguage)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		trace.Warn(ctx, "api: resp status=%d len=%d body=%s", resp.StatusCode, len(body), truncateForLog(body))
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return body, nil
}

func truncateForLog(b []byte) string {
	s := string(b)
	if len(b) > maxRespLogLen {
		s = s[:maxRespLogLen] + "..."
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r", " "), "\n", " ")
}

// GetAllStocks 分页拉取全市场股票列表（代码+名称），供股票池过滤。
func (c *Client) GetAllStocks(ctx context.Context) ([]model.StockBrief, error) {
	var all []model.StockBrief
	page := 1
	trace.Log(ctx, "api: GetAllStocks start")
	for {
		url := fmt.Sprintf("%s?pn=%d&pz=%d&fs=%s&fields=%s",
			EastMoneyListURL, page, listPageSize, listMarkets, listFieldsBrief)
		body, err := c.get(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("list page %d: %w", page, err)
		}
		total, count, err := decodeStockList(body, &all)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode list page %d: %w", page, err)
		}
		if count == 0 {
			break
		}
		if total <= len(all) || count < listPageSize {
			break
		}
		page++
	}
	trace.Log(ctx, "api: GetAllStocks done len=%d", len(all))
	return all, nil
}

// decodeStockList 流式解析列表 JSON：根对象下 data.total、data.diff。
func decodeStockList(body []byte, list *[]model.StockBrief) (total int, count int, err error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	if t, err := dec.Token(); err != nil {
		return 0, 0, err
	} else if d, ok := t.(json.Delim); !ok || d != '{' {
		return 0, 0, fmt.Errorf("expected {")
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return total, count, err
		}
		s, ok := key.(string)
		if !ok || s != "data" {
			if err := skipValue(dec); err != nil {
				return total, count, err
			}
			continue
		}
		if t, err := dec.Token(); err != nil {
			return total, count, err
		} else if d, ok := t.(json.Delim); !ok || d != '{' {
			return total, count, fmt.Errorf("expected data {")
		}
		for dec.More() {
			k, err := dec.Token()
			if err != nil {
				return total, count, err
			}
			ks, ok := k.(string)
			if !ok {
				return total, count, fmt.Errorf("expected key")
			}
			if ks == "total" {
				var n json.Number
				if err := dec.Decode(&n); err != nil {
					return total, count, err
				}
				v, _ := n.Int64()
				total = int(v)
				continue
			}
			if ks == "diff" {
				if t, err := dec.Token(); err != nil {
					return total, count, err
				} else if d, ok := t.(json.Delim); !ok || d != '[' {
					return total, count, fmt.Errorf("expected diff [")
				}
				start := len(*list)
				for dec.More() {
					var item struct {
						F12 string `json:"f12"`
						F14 string `json:"f14"`
					}
					if err := dec.Decode(&item); err != nil {
						return total, len(*list) - start, err
					}
					if item.F12 != "" {
						*list = append(*list, model.StockBrief{Code: item.F12, Name: item.F14})
					}
				}
				if _, err := dec.Token(); err != nil {
					return total, len(*list) - start, err
				}
				count = len(*list) - start
				continue
			}
			if err := skipValue(dec); err != nil {
				return total, count, err
			}
		}
		if _, err := dec.Token(); err != nil {
			return total, count, err
		}
		break
	}
	return total, count, nil
}

// adjustToFqt 复权方式映射：qfq 前复权 1，hfq 后复权 2，其余不复权 0。
func adjustToFqt(adjust string) int {
	switch strings.ToLower(strings.TrimSpace(adjust)) {
	case "qfq":
		return 1
	case "hfq":
		return 2
	default:
		return 0
	}
}

// GetDailyKlines 拉取指定日期窗口的日 K（beg/end 为 YYYYMMDD），klt=101 日线。
func (c *Client) GetDailyKlines(ctx context.Context, code, startDate, endDate, adjust string) ([]model.KLine, error) {
	if code == "" {
		return nil, fmt.Errorf("invalid code")
	}
	secid := FormatCode(code)
	url := fmt.Sprintf("%s?secid=%s&fields1=f1,f2,f3,f4,f5,f6&fields2=f51,f52,f53,f54,f55,f56&klt=101&fqt=%d&beg=%s&end=%s",
		EastMoneyKLineURL, secid, adjustToFqt(adjust), startDate, endDate)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseKlinesGJSON(body, code)
}

// parseKlinesGJSON 解析 data.klines：每条为 "日期,开,收,高,低,量" 逗号串。
func parseKlinesGJSON(body []byte, code string) ([]model.KLine, error) {
	klines := gjson.GetBytes(body, "data.klines")
	if !klines.Exists() || !klines.IsArray() {
		return nil, fmt.Errorf("api: no data.klines for %s", code)
	}
	arr := klines.Array()
	out := make([]model.KLine, 0, len(arr))
	for _, v := range arr {
		s := strings.TrimSpace(v.String())
		if s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		if len(parts) < 6 {
			continue
		}
		openVal, _ := strconv.ParseFloat(parts[1], 64)
		closeVal, _ := strconv.ParseFloat(parts[2], 64)
		highVal, _ := strconv.ParseFloat(parts[3], 64)
		lowVal, _ := strconv.ParseFloat(parts[4], 64)
		vol, _ := strconv.ParseInt(parts[5], 10, 64)
		out = append(out, model.KLine{
			Date:   parts[0],
			Open:   openVal,
			High:   highVal,
			Low:    lowVal,
			Close:  closeVal,
			Volume: vol,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("api: no klines for %s", code)
	}
	return out, nil
}

// FormatCode 转为东方财富 secid：上海 0.600519，深圳 1.000001。
func FormatCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "0.000000"
	}
	if code[0] == '6' || code[0] == '5' || code[0] == '9' {
		return "0." + code
	}
	return "1." + code
}

func skipValue(dec *json.Decoder) error {
	t, err := dec.Token()
	if err != nil {
		return err
	}
	switch d := t.(type) {
	case json.Delim:
		if d == '{' || d == '[' {
			n := 1
			for n > 0 {
				tt, err := dec.Token()
				if err != nil {
					return err
				}
				if dd, ok := tt.(json.Delim); ok {
					if dd == '{' || dd == '[' {
						n++
					} else {
						n--
					}
				}
			}
		}
	}
	return nil
}
