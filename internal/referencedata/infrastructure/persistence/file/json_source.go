// Package file 提供基于本地文件的合约数据源
package file

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/wyfcoding/orderbridge/internal/referencedata/domain"
)

var codec = sonic.Config{UseNumber: true}.Froze()

// JSONSource 读取形如 [{"symbol": "...", "instrument_token": 123}, ...] 的 JSON 数组文件
type JSONSource struct {
	path string
}

// NewJSONSource 创建 JSON 文件数据源
func NewJSONSource(path string) *JSONSource {
	return &JSONSource{path: path}
}

// Name 数据源名称
func (s *JSONSource) Name() string {
	return "file:" + s.path
}

// Fetch 读取并解析文件。非对象元素会作为空记录返回，由注册表计入跳过数。
func (s *JSONSource) Fetch(ctx context.Context) ([]domain.RawInstrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return decode(data)
}

func decode(data []byte) ([]domain.RawInstrument, error) {
	var items []any
	if err := codec.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode instrument dataset: %w", err)
	}

	out := make([]domain.RawInstrument, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, domain.RawInstrument{})
			continue
		}
		out = append(out, domain.RawInstrument{
			Symbol: obj["symbol"],
			Token:  obj["instrument_token"],
		})
	}
	return out, nil
}
