package rag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document 语料文档
type Document struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Text  string `json:"text" yaml:"text"`
}

// corpusFile is the on-disk layout accepted by LoadCorpus. A bare list of
// documents is accepted as well.
type corpusFile struct {
	Documents []Document `json:"documents" yaml:"documents"`
}

// LoadCorpus 从 YAML 或 JSON 文件加载语料，按扩展名选择解析器
func LoadCorpus(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	var docs []Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		docs, err = decodeCorpus(data, json.Unmarshal)
	case ".yaml", ".yml":
		docs, err = decodeCorpus(data, yaml.Unmarshal)
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse corpus %s: %w", path, err)
	}

	if err := validateCorpus(docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func decodeCorpus(data []byte, unmarshal func([]byte, any) error) ([]Document, error) {
	var wrapped corpusFile
	if err := unmarshal(data, &wrapped); err == nil && len(wrapped.Documents) > 0 {
		return wrapped.Documents, nil
	}
	var docs []Document
	if err := unmarshal(data, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func validateCorpus(docs []Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("corpus is empty")
	}
	seen := make(map[string]bool, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document %d has no id", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate document id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// SampleDocuments 返回内置示例语料：订单接口文档与配套说明
func SampleDocuments() []Document {
	return []Document{
		{
			ID:    "orders-api-001",
			Title: "订单查询接口",
			Text: `GET /api/orders/{order_id}

参数：
- order_id: 订单ID

功能：
根据订单ID返回订单详情，包括状态、价格、物流信息。`,
		},
		{
			ID:    "orders-api-002",
			Title: "订单列表查询接口",
			Text: `GET /api/orders?user_id={uid}

参数：
- user_id: 用户ID

功能：
返回用户最近 50 条订单，支持状态筛选、时间范围筛选。`,
		},
		{
			ID:    "refunds-api-001",
			Title: "退款申请接口",
			Text: `POST /api/refunds

参数：
- order_id: 订单ID
- reason: 退款原因

功能：
为已支付订单发起退款申请，返回退款单号与审核状态。`,
		},
		{
			ID:    "ui-guide-001",
			Title: "我的订单页面说明",
			Text: `“我的订单”页面按下单时间倒序展示订单卡片。
点击卡片进入详情页，可查看物流轨迹并申请售后。`,
		},
		{
			ID:    "auth-api-001",
			Title: "Access token API",
			Text: `POST /api/auth/token

Exchange an API key for a short-lived access token.
Tokens expire after 2 hours and must be sent in the Authorization header.`,
		},
	}
}
