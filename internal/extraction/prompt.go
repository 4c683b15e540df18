package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/llm"
)

// Result is the structured payload the model returns for one entry.
type Result struct {
	ExtractedInfo *ExtractedInfo       `json:"extracted_info,omitempty"`
	CardData      map[string]any       `json:"card_data"`
	Summary       string               `json:"summary"`
	SuggestedTags []string             `json:"suggested_tags"`
	NewDimensions []dimension.Proposal `json:"new_dimensions"`
}

// ExtractedInfo carries profile fields recognized from a resume.
type ExtractedInfo struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	CurrentRole string `json:"current_role"`
	Department  string `json:"department"`
}

const resultSchemaJSON = `{
	"type": "object",
	"required": ["card_data"],
	"properties": {
		"extracted_info": {
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"email": {"type": "string"},
				"phone": {"type": "string"},
				"current_role": {"type": "string"},
				"department": {"type": "string"}
			}
		},
		"card_data": {"type": "object"},
		"summary": {"type": "string"},
		"suggested_tags": {"type": "array", "items": {"type": "string"}},
		"new_dimensions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["key"],
				"properties": {
					"key": {"type": "string"},
					"label": {"type": "string"},
					"schema": {"type": "string"}
				}
			}
		}
	}
}`

var resultSchema = llm.MustCompileSchema("extraction_result", resultSchemaJSON)

func describeDimensions(dims []dimension.Dimension) string {
	var b strings.Builder
	for _, d := range dims {
		fmt.Fprintf(&b, "- %s (%s): 结构为 %s\n", d.Key, d.Label, d.Schema)
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildTextPrompt(talentName string, dims []dimension.Dimension, existingCard map[string]any, input string) string {
	if talentName == "" {
		talentName = "未命名"
	}
	cardJSON, err := json.MarshalIndent(existingCard, "", "  ")
	if err != nil {
		cardJSON = []byte("{}")
	}

	return fmt.Sprintf(`你是一个人才信息整理助手。请根据用户输入的信息，更新人才卡片数据。

## 当前人才: %s

## 当前维度定义:
%s

## 当前卡片数据:
%s

## 用户新输入的信息:
%s

## 要求:
1. 将用户输入的信息整理并合并到对应的维度中
2. 保留已有的信息，新增或更新相关字段
3. 如果用户输入的信息无法归入现有维度，可以在 new_dimensions 中建议新增维度
4. 为此人才建议合适的标签。标签必须原子化，每个标签只表达一个独立概念，不要组合。例如"中科院硕士"应拆为"中科院"和"硕士"两个标签，"前端技术专家"应拆为"前端"和"技术专家"
5. 生成一句话总结更新到 one_liner 维度

请严格返回以下JSON格式（不要包含markdown代码块标记）:
{
  "card_data": { ... 更新后的完整卡片数据，key必须与维度定义对齐 ... },
  "summary": "一句话描述这个人才",
  "suggested_tags": ["标签1", "标签2"],
  "new_dimensions": [
    {
      "key": "dimension_key",
      "label": "维度中文名",
      "schema": "JSON schema string defining the structure"
    }
  ]
}`, talentName, describeDimensions(dims), string(cardJSON), input)
}

func buildResumePrompt(talentName string, dims []dimension.Dimension, resumeText string) string {
	if talentName == "" {
		talentName = "从简历中识别"
	}

	return fmt.Sprintf(`你是一个简历解析助手。请仔细阅读以下简历文本，提取结构化信息，填入人才卡片。

## 人才姓名: %s

## 人才卡维度定义:
%s

## 简历文本:
%s

## 要求:
1. 仔细阅读简历中的所有内容
2. 从简历中提取信息，填入对应的维度
3. 如果能识别出姓名、邮箱、电话，请在返回的 extracted_info 中提供
4. 如果简历中有信息无法归入现有维度，建议新维度
5. 标签必须原子化，每个标签只表达一个独立概念，不要组合。例如"中科院硕士"应拆为"中科院"和"硕士"两个标签

请严格返回以下JSON格式（不要包含markdown代码块标记）:
{
  "extracted_info": {
    "name": "识别到的姓名",
    "email": "邮箱",
    "phone": "电话",
    "current_role": "当前职位",
    "department": "部门"
  },
  "card_data": { ... 填充的卡片数据 ... },
  "summary": "一句话描述",
  "suggested_tags": ["标签1"],
  "new_dimensions": []
}`, talentName, describeDimensions(dims), resumeText)
}
