// Package evalsite implements the evaluation-site adapter (C10): a
// server-rendered form-postback application. Every POST round-trips the
// full hidden-field view-state, driving a select -> switch-filter ->
// paginate sequence per subject and extracting accordion rows and detail
// panes from the returned HTML via goquery.
package evalsite

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/campusgraph/coursesync/pkg/adapters"
	"github.com/campusgraph/coursesync/pkg/apperrors"
	"github.com/campusgraph/coursesync/pkg/model"
)

// Adapter drives the evaluation site's stateful form workflow.
type Adapter struct {
	client *adapters.Client
}

// New constructs an evaluation-site adapter on top of the shared adapter Client.
func New(client *adapters.Client) *Adapter {
	return &Adapter{client: client}
}

// viewState is the full set of hidden form fields the site expects
// round-tripped on every postback.
type viewState map[string]string

func (v viewState) values() url.Values {
	vals := url.Values{}
	for k, val := range v {
		vals.Set(k, val)
	}
	return vals
}

func (a *Adapter) postForm(ctx context.Context, form url.Values) (*goquery.Document, viewState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.BaseURL+"/evaluations", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindTransport, "building evaluation-site request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := a.client.Limiter.Wait(ctx); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindTransport, "evaluation site rate limiter wait", err)
	}
	resp, err := a.client.HTTP.Do(req)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindTransport, "evaluation-site request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, nil, apperrors.New(apperrors.KindRateLimited, "evaluation site rate limited")
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindParse, "parsing evaluation-site HTML", err)
	}
	return doc, extractViewState(doc), nil
}

// extractViewState reads every hidden input on the page, so the next
// postback can carry the server's updated state forward unchanged.
func extractViewState(doc *goquery.Document) viewState {
	vs := make(viewState)
	doc.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok {
			return
		}
		value, _ := s.Attr("value")
		vs[name] = value
	})
	return vs
}

// bootstrap fetches the initial evaluation-site form to obtain a starting
// view-state before any filter is applied.
func (a *Adapter) bootstrap(ctx context.Context) (viewState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.BaseURL+"/evaluations", nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "building bootstrap request", err)
	}
	if err := a.client.Limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "evaluation site rate limiter wait", err)
	}
	resp, err := a.client.HTTP.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "bootstrap request failed", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindParse, "parsing bootstrap HTML", err)
	}
	return extractViewState(doc), nil
}

// FetchSubjectEvaluations drives the full select -> filter -> paginate
// sequence for one subject and extracts every accordion row across all
// pages, deduplicating by natural key and preferring the row with more
// responses (spec §4.10).
func (a *Adapter) FetchSubjectEvaluations(ctx context.Context, subject string) ([]model.EvaluationRecord, error) {
	vs, err := a.bootstrap(ctx)
	if err != nil {
		return nil, err
	}

	form := vs.values()
	form.Set("ctl$subjectSelect", subject)
	form.Set("ctl$action", "filter")
	doc, vs, err := a.postForm(ctx, form)
	if err != nil {
		return nil, err
	}

	byKey := make(map[[5]string]model.EvaluationRecord)
	page := 1
	for {
		for _, rec := range extractRows(doc, subject) {
			key := rec.NaturalKey()
			if existing, ok := byKey[key]; !ok || rec.ResponseCount > existing.ResponseCount {
				byKey[key] = rec
			}
		}

		nextForm := vs.values()
		nextForm.Set("ctl$action", "page")
		nextForm.Set("ctl$page", strconv.Itoa(page+1))
		hasMore := doc.Find(`a.eval-next-page:not(.disabled)`).Length() > 0
		if !hasMore {
			break
		}
		doc, vs, err = a.postForm(ctx, nextForm)
		if err != nil {
			return nil, err
		}
		page++
	}

	out := make([]model.EvaluationRecord, 0, len(byKey))
	for _, rec := range byKey {
		out = append(out, rec)
	}
	return out, nil
}

// extractRows reads the accordion rows and their detail panes from one
// rendered page.
func extractRows(doc *goquery.Document, subject string) []model.EvaluationRecord {
	var out []model.EvaluationRecord
	doc.Find(`div.eval-accordion-row`).Each(func(_ int, s *goquery.Selection) {
		number := strings.TrimSpace(s.Find(`.eval-course-number`).Text())
		section := strings.TrimSpace(s.Find(`.eval-section`).Text())
		term := strings.TrimSpace(s.Find(`.eval-term`).Text())
		instructor := strings.TrimSpace(s.Find(`.eval-instructor`).Text())
		department := strings.TrimSpace(s.Find(`.eval-department`).Text())

		detail := s.Find(`.eval-detail-pane`)
		rating, _ := strconv.ParseFloat(strings.TrimSpace(detail.Find(`.eval-rating`).Text()), 64)
		responses, _ := strconv.Atoi(strings.TrimSpace(detail.Find(`.eval-response-count`).Text()))

		if number == "" || instructor == "" {
			return
		}
		out = append(out, model.EvaluationRecord{
			Subject:        subject,
			CourseNumber:   number,
			Section:        section,
			Term:           term,
			InstructorName: instructor,
			Rating:         rating,
			ResponseCount:  responses,
			Department:     department,
		})
	})
	return out
}
