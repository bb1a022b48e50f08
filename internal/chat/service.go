package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/apperr"
	"github.com/PortNumber53/readflash/backend/internal/gemini"
	"github.com/PortNumber53/readflash/backend/internal/metrics"
	"github.com/PortNumber53/readflash/backend/internal/models"
)

const (
	// MaxImageBytes bounds the decoded size of an uploaded image.
	MaxImageBytes = 5 << 20

	defaultImageMime = "image/jpeg"

	FallbackResponse = "Desculpe, não consegui processar sua solicitação no momento."
	imageOnlyPrompt  = "Analise esta imagem do livro e explique o conteúdo de forma didática. Ofereça insights educativos sobre o que você vê."
	imageHistoryText = "Análise de imagem"
)

// Generator produces a model answer for a single user turn.
type Generator interface {
	GenerateContent(ctx context.Context, parts []gemini.Part) (string, error)
}

// HistoryStore archives exchanges.
type HistoryStore interface {
	SaveChatMessage(ctx context.Context, msg models.ChatMessage) error
}

// BookLookup resolves book context for the prompt.
type BookLookup interface {
	GetBook(ctx context.Context, id int64) (models.Book, error)
}

// BookRef accepts a book id sent as a JSON string or number.
type BookRef string

func (b *BookRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = BookRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("bookId must be a string or number: %w", err)
	}
	*b = BookRef(n.String())
	return nil
}

// Request is an assistant question. At least one of Message and ImageData is required.
type Request struct {
	Message   string  `json:"message"`
	BookID    BookRef `json:"bookId"`
	ImageData string  `json:"imageData"`
	UserID    string  `json:"userId"`
}

// Service answers reading questions through the generative model.
type Service struct {
	gen     Generator
	history HistoryStore
	books   BookLookup
	logger  *zap.Logger
}

func NewService(gen Generator, history HistoryStore, books BookLookup, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, history: history, books: books, logger: logger.With(zap.String("component", "ai-chat"))}
}

var dataURLPrefix = regexp.MustCompile(`^data:(image/[a-zA-Z0-9.+-]+);base64,`)

// Image is a decoded upload ready to be sent inline.
type Image struct {
	MimeType string
	Base64   string
}

// ParseImage strips an optional data URL prefix, checks the payload is valid
// base64 and enforces MaxImageBytes.
func ParseImage(raw string) (Image, error) {
	img := Image{MimeType: defaultImageMime, Base64: strings.TrimSpace(raw)}
	if m := dataURLPrefix.FindStringSubmatch(img.Base64); m != nil {
		img.MimeType = strings.ToLower(m[1])
		img.Base64 = img.Base64[len(m[0]):]
	}
	if base64.StdEncoding.DecodedLen(len(img.Base64)) > MaxImageBytes+2 {
		return Image{}, apperr.New(apperr.KindValidation, "Image must be at most 5MB")
	}
	decoded, err := base64.StdEncoding.DecodeString(img.Base64)
	if err != nil {
		return Image{}, apperr.Wrap(apperr.KindValidation, "Image must be base64 encoded", err)
	}
	if len(decoded) > MaxImageBytes {
		return Image{}, apperr.New(apperr.KindValidation, "Image must be at most 5MB")
	}
	if len(decoded) == 0 {
		return Image{}, apperr.New(apperr.KindValidation, "Image is empty")
	}
	return img, nil
}

// Ask builds the prompt, queries the model and archives the exchange when the
// request names a user. Archive failures are logged and never fail the call.
func (s *Service) Ask(ctx context.Context, req Request) (string, error) {
	message := strings.TrimSpace(req.Message)
	hasImage := strings.TrimSpace(req.ImageData) != ""
	if message == "" && !hasImage {
		metrics.ChatRequestsTotal.WithLabelValues("invalid").Inc()
		return "", apperr.New(apperr.KindValidation, "A message or an image is required")
	}

	s.logger.Info("request received",
		zap.Bool("has_message", message != ""),
		zap.Bool("has_book_id", req.BookID != ""),
		zap.Bool("has_image", hasImage),
		zap.String("user_id", req.UserID),
	)

	var parts []gemini.Part
	if message != "" {
		parts = append(parts, gemini.Part{Text: s.prompt(ctx, req.BookID, message)})
	}
	if hasImage {
		img, err := ParseImage(req.ImageData)
		if err != nil {
			metrics.ChatRequestsTotal.WithLabelValues("invalid").Inc()
			return "", err
		}
		parts = append(parts, gemini.Part{InlineData: &gemini.Blob{MimeType: img.MimeType, Data: img.Base64}})
		if message == "" {
			parts = append(parts, gemini.Part{Text: imageOnlyPrompt})
		}
	}

	answer, err := s.gen.GenerateContent(ctx, parts)
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Error("model call failed", zap.Error(err))
		if errors.Is(err, gemini.ErrMissingAPIKey) {
			return "", apperr.Wrap(apperr.KindConfiguration, "AI assistant is not configured", err)
		}
		return "", apperr.Wrap(apperr.KindUpstream, "Failed to get a response from the AI assistant", err)
	}
	if strings.TrimSpace(answer) == "" {
		answer = FallbackResponse
	}
	metrics.ChatRequestsTotal.WithLabelValues("ok").Inc()

	if req.UserID != "" && s.history != nil {
		s.archive(ctx, req, message, answer, hasImage)
	}
	return answer, nil
}

func (s *Service) archive(ctx context.Context, req Request, message, answer string, hasImage bool) {
	entry := models.ChatMessage{
		UserID:   req.UserID,
		Message:  message,
		Response: answer,
	}
	if entry.Message == "" {
		entry.Message = imageHistoryText
	}
	if req.BookID != "" {
		bookID := string(req.BookID)
		entry.BookID = &bookID
	}
	if hasImage {
		uploaded := "uploaded"
		entry.ImageURL = &uploaded
	}
	if err := s.history.SaveChatMessage(ctx, entry); err != nil {
		s.logger.Warn("failed to save chat history", zap.String("user_id", req.UserID), zap.Error(err))
		return
	}
	s.logger.Debug("chat history saved")
}

func (s *Service) prompt(ctx context.Context, ref BookRef, message string) string {
	var b strings.Builder
	b.WriteString("Você é uma professora de leitura especializada e amigável.\n")
	if ref != "" {
		b.WriteString(s.bookContext(ctx, ref))
		b.WriteString("\n")
	}
	b.WriteString("\nResponda de forma educativa, encorajadora e sempre relacione ao contexto de leitura e aprendizado.\n")
	b.WriteString("Seja prática nas suas explicações e ofereça dicas úteis de leitura.\n\n")
	b.WriteString("Pergunta/comentário do usuário: ")
	b.WriteString(message)
	return b.String()
}

func (s *Service) bookContext(ctx context.Context, ref BookRef) string {
	fallback := fmt.Sprintf("O usuário está lendo um livro (ID: %s).", ref)
	if s.books == nil {
		return fallback
	}
	id, err := strconv.ParseInt(string(ref), 10, 64)
	if err != nil {
		return fallback
	}
	book, err := s.books.GetBook(ctx, id)
	if err != nil {
		s.logger.Debug("book context unavailable", zap.String("book_id", string(ref)), zap.Error(err))
		return fallback
	}
	return fmt.Sprintf("O usuário está lendo o livro \"%s\", de %s (ID: %s).", book.Title, book.Author, ref)
}
