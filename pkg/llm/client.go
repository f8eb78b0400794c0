// Package llm provides the chat completion client used to run interviews.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Sandro385/expert-tune/internal/config"

	"github.com/gorilla/websocket"
	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the provider answers without any content.
var ErrEmptyResponse = errors.New("completion provider returned no content")

// MessageWriter receives streamed chunks. A websocket.Conn satisfies it.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client sends a conversation to the provider and returns the assistant reply.
type Client interface {
	// Chat returns the full reply. When writer is non-nil the reply is also streamed
	// to it chunk by chunk as websocket text messages.
	Chat(ctx context.Context, messages []Message, writer MessageWriter) (string, error)
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient creates an OpenAI-compatible client. BaseURL may point at any
// compatible endpoint.
func NewClient(cfg config.LLMConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAIClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (c *openAIClient) Chat(ctx context.Context, messages []Message, writer MessageWriter) (string, error) {
	req := c.buildRequest(messages)
	if writer == nil {
		return c.complete(ctx, req)
	}
	return c.stream(ctx, req, writer)
}

func (c *openAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) stream(ctx context.Context, req openai.ChatCompletionRequest, writer MessageWriter) (string, error) {
	req.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to open chat stream: %w", err)
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read from stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		answer.WriteString(content)
		if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
			return "", fmt.Errorf("failed to write chunk: %w", err)
		}
	}

	if answer.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return answer.String(), nil
}

func (c *openAIClient) buildRequest(messages []Message) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: float32(c.cfg.Generation.Temperature),
		TopP:        float32(c.cfg.Generation.TopP),
		MaxTokens:   c.cfg.Generation.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return req
}
