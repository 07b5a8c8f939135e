package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/victornm/equiz-client/internal/domain"
	"github.com/victornm/equiz-client/internal/errors"
)

type ListQuizzesRequest struct {
	Page        int
	Limit       int
	IsPublished bool
}

type QuizPage struct {
	Quizzes []domain.Quiz
	Meta    PageMeta
}

func (c *Client) ListQuizzes(ctx context.Context, req ListQuizzesRequest) (*QuizPage, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("limit", strconv.Itoa(req.Limit))
	q.Set("isPublished", strconv.FormatBool(req.IsPublished))

	env, err := c.get(ctx, "/quizzes", q)
	if err != nil {
		return nil, err
	}

	page := &QuizPage{}
	if err := unmarshalData(env, &page.Quizzes); err != nil {
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("list quizzes: bad quiz payload"),
			errors.WithCause(err),
		)
	}
	if env.Meta != nil {
		page.Meta = *env.Meta
	}
	return page, nil
}

func (c *Client) GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error) {
	env, err := c.get(ctx, fmt.Sprintf("/quizzes/%d", quizID), nil)
	if err != nil {
		return nil, err
	}

	var quiz domain.Quiz
	if err := unmarshalData(env, &quiz); err != nil {
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("get quiz %d: bad quiz payload", quizID),
			errors.WithCause(err),
		)
	}
	return &quiz, nil
}

func unmarshalData(env *Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("response carried no data")
	}
	return json.Unmarshal(env.Data, v)
}
