package chat

import (
	"fmt"
	"strings"

	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/llm"
)

const analyzeSchemaJSON = `{
	"type": "object",
	"required": ["relevant_dimensions"],
	"properties": {
		"relevant_dimensions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["key"],
				"properties": {
					"key": {"type": "string"},
					"label": {"type": "string"}
				}
			}
		},
		"reasoning": {"type": "string"}
	}
}`

var analyzeSchema = llm.MustCompileSchema("chat_analyze", analyzeSchemaJSON)

func describeDimensions(dims []dimension.Dimension) string {
	var b strings.Builder
	for _, d := range dims {
		fmt.Fprintf(&b, "- %s (%s): 结构为 %s\n", d.Key, d.Label, d.Schema)
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildAnalyzePrompt(query string, dims []dimension.Dimension) string {
	return fmt.Sprintf(`你是一个人才数据分析助手。用户要查询关于人才库的问题，请判断回答这个问题需要查看哪些人才卡维度。

## 可用维度:
%s

## 用户问题:
%s

## 要求:
1. 选择与问题最相关的维度（可以多选）
2. 简要说明为什么选择这些维度

请严格返回以下JSON格式（不要包含markdown代码块标记）:
{
  "relevant_dimensions": [{"key": "dimension_key", "label": "维度中文名"}, ...],
  "reasoning": "简要说明为什么选择这些维度"
}`, describeDimensions(dims), query)
}

func buildAnswerPrompt(query, contextJSON string, dimensionCount int) string {
	return fmt.Sprintf(`你是一个人才数据分析助手。请根据以下人才数据回答用户的问题。

## 人才数据（JSON格式，包含 %d 个相关维度）:
%s

## 用户问题:
%s

## 要求:
1. 基于提供的数据如实回答，不要编造信息
2. 如果数据不足以回答，请说明
3. 回答要简洁有条理
4. 如果涉及多个人才的对比，用列表展示

请直接回答（纯文本，不要JSON格式）:`, dimensionCount, contextJSON, query)
}
