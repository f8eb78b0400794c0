package service

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/internal/repository"
	"github.com/Sandro385/expert-tune/pkg/llm"
	"github.com/Sandro385/expert-tune/pkg/log"
)

// Reply is the assistant turn produced by one submission.
type Reply struct {
	Message model.Turn
	// Warning is a *apperr.ProviderError when the provider failed and Message holds the apology.
	Warning error
}

// ChatService owns the interview sessions, one per (username, domain).
type ChatService interface {
	Domains() []string
	ValidateDomain(domain string) error
	// Transcript loads the session if needed and returns a copy of its turns.
	Transcript(ctx context.Context, key model.ConversationKey) ([]model.Turn, error)
	// Submit records a user turn, asks the provider for the next question and records it.
	// A provider failure is not returned as an error; it is reported in Reply.Warning.
	Submit(ctx context.Context, key model.ConversationKey, content string, writer llm.MessageWriter) (*Reply, error)
	// CloseUser drops every in-memory session of username. Stored history is untouched.
	CloseUser(username string)
}

// Session is the in-memory transcript of one partition. The store stays the source of truth.
type Session struct {
	key        model.ConversationKey
	mu         sync.Mutex
	loaded     bool
	transcript []model.Turn
}

type chatService struct {
	llmClient   llm.Client
	messageRepo repository.MessageRepository
	cfg         config.ChatConfig

	mu       sync.Mutex
	sessions map[model.ConversationKey]*Session
}

// NewChatService creates a ChatService.
func NewChatService(llmClient llm.Client, messageRepo repository.MessageRepository, cfg config.ChatConfig) ChatService {
	return &chatService{
		llmClient:   llmClient,
		messageRepo: messageRepo,
		cfg:         cfg,
		sessions:    make(map[model.ConversationKey]*Session),
	}
}

func (s *chatService) Domains() []string {
	out := make([]string, len(s.cfg.Domains))
	copy(out, s.cfg.Domains)
	return out
}

func (s *chatService) ValidateDomain(domain string) error {
	if strings.TrimSpace(domain) == "" {
		return apperr.Invalid("domain", "must not be empty")
	}
	if len(s.cfg.Domains) == 0 {
		return nil
	}
	for _, d := range s.cfg.Domains {
		if d == domain {
			return nil
		}
	}
	return apperr.Invalid("domain", "unknown domain "+strconv.Quote(domain))
}

func (s *chatService) Transcript(ctx context.Context, key model.ConversationKey) ([]model.Turn, error) {
	if err := s.ValidateDomain(key.Domain); err != nil {
		return nil, err
	}
	sess := s.session(key)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.load(ctx, sess); err != nil {
		return nil, err
	}
	out := make([]model.Turn, len(sess.transcript))
	copy(out, sess.transcript)
	return out, nil
}

func (s *chatService) Submit(ctx context.Context, key model.ConversationKey, content string, writer llm.MessageWriter) (*Reply, error) {
	if err := s.ValidateDomain(key.Domain); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Invalid("content", "must not be empty")
	}

	sess := s.session(key)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.load(ctx, sess); err != nil {
		return nil, err
	}

	// turns are persisted even if the caller goes away mid-request
	storeCtx := context.WithoutCancel(ctx)

	// 1. user turn: store, then memory
	if _, err := s.messageRepo.Append(storeCtx, key, model.RoleUser, content); err != nil {
		return nil, err
	}
	sess.transcript = append(sess.transcript, model.Turn{Role: model.RoleUser, Content: content})

	// 2. ask the provider
	reply := &Reply{}
	answer, err := s.llmClient.Chat(ctx, s.composeMessages(key.Domain, sess.transcript), writer)
	if err != nil {
		log.Warnf("[ChatService] completion failed for %s: %v", key, err)
		answer = s.cfg.Apology
		reply.Warning = &apperr.ProviderError{Err: err}
	}

	// 3. assistant turn, exactly once whether real or apology
	if _, err := s.messageRepo.Append(storeCtx, key, model.RoleAssistant, answer); err != nil {
		return nil, err
	}
	turn := model.Turn{Role: model.RoleAssistant, Content: answer}
	sess.transcript = append(sess.transcript, turn)
	reply.Message = turn
	return reply, nil
}

func (s *chatService) CloseUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.sessions {
		if key.Username == username {
			delete(s.sessions, key)
		}
	}
}

func (s *chatService) session(key model.ConversationKey) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		sess = &Session{key: key}
		s.sessions[key] = sess
	}
	return sess
}

// load moves an empty session to active: stored history if any, otherwise the
// greeting. The greeting lives only in memory. Callers hold sess.mu.
func (s *chatService) load(ctx context.Context, sess *Session) error {
	if sess.loaded {
		return nil
	}
	messages, err := s.messageRepo.LoadConversation(ctx, sess.key)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		sess.transcript = []model.Turn{{Role: model.RoleAssistant, Content: s.cfg.Greeting}}
	} else {
		sess.transcript = repository.Turns(messages)
	}
	sess.loaded = true
	return nil
}

func (s *chatService) composeMessages(domain string, transcript []model.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(transcript)+1)
	msgs = append(msgs, llm.Message{Role: string(model.RoleSystem), Content: s.systemPrompt(domain)})
	for _, t := range transcript {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}

func (s *chatService) systemPrompt(domain string) string {
	return strings.NewReplacer(
		"{domain}", domain,
		"{count}", strconv.Itoa(s.cfg.QuestionCount),
		"{sentinel}", s.cfg.Sentinel,
	).Replace(s.cfg.SystemPrompt)
}
