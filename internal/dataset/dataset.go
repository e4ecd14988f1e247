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

// Package dataset 读取 JSONL 格式的问题集：每行 {"id", "question", "answers"}。
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"search-agent/internal/agent/controller"
)

const maxLineBytes = 4 << 20

type line struct {
	ID       json.RawMessage `json:"id"`
	Question string          `json:"question"`
	Answers  json.RawMessage `json:"answers"`
}

// LoadFile 读取问题文件；limit>0 时只取前 limit 条
func LoadFile(path string, limit int) ([]controller.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Load(f, limit)
}

// Load 逐行解析；空行跳过，缺少 id 时以行号（从 1 开始）代替，id 不可重复
func Load(r io.Reader, limit int) ([]controller.Question, error) {
	var out []controller.Question
	seen := map[string]int{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if strings.TrimSpace(l.Question) == "" {
			return nil, fmt.Errorf("line %d: empty question", n)
		}
		id, err := parseID(l.ID, n)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("line %d: duplicate id %q (first on line %d)", n, id, prev)
		}
		seen[id] = n
		answers, err := parseAnswers(l.Answers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, controller.Question{ID: id, Text: l.Question, Answers: answers})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return out, nil
}

// parseID 接受字符串或数字 id
func parseID(raw json.RawMessage, lineNo int) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return strconv.Itoa(lineNo), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return strconv.Itoa(lineNo), nil
		}
		return s, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", fmt.Errorf("id must be a string or number")
	}
	return num.String(), nil
}

// parseAnswers 接受字符串数组或单个字符串
func parseAnswers(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("answers must be a string or list of strings")
	}
	return []string{one}, nil
}
