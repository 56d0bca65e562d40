package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CheckChatEndpoint 用最小请求探测 /chat/completions 是否可用，返回模型回包文本。
func CheckChatEndpoint(ctx context.Context, baseURL string, apiKey string, model string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return "", errors.New("missing OPENAI_API_KEY")
	}

	base := normalizeBaseURL(baseURL)
	if strings.TrimSpace(base) == "" {
		base = "https://api.openai.com/v1"
	}
	endpoint := strings.TrimRight(base, "/") + "/chat/completions"

	reqBody := map[string]any{
		"model": strings.TrimSpace(model),
		"messages": []map[string]any{
			{"role": "system", "content": "请严格只输出 ping（全小写），不要任何其他字符（不要标点、不要换行）。"},
			{"role": "user", "content": "ping"},
		},
	}
	if strings.TrimSpace(model) == "" {
		reqBody["model"] = "gpt-4o-mini"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", key))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http_%d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	text := strings.TrimSpace(extractChatText(body))
	if text == "" {
		return "", errors.New("chat completions api returned no text")
	}
	return text, nil
}

func extractChatText(raw []byte) string {
	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ""
	}
	for _, choice := range decoded.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text
		}
	}
	return ""
}
