// Package erp implements the REST+session ERP adapter (C10): a pool of
// server-affinity sessions, page-500 pagination, and fingerprint-stable
// filter encoding for course search.
package erp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/campusgraph/coursesync/pkg/apperrors"
	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/snapshot"
	"github.com/campusgraph/coursesync/pkg/worker"
)

// PageSize is the fixed page size for every paginated ERP query (spec §4.10).
const PageSize = 500

// Adapter is the ERP source adapter. It satisfies worker.Processor for
// target_type "subject".
type Adapter struct {
	baseURL  string
	sessions []*http.Client
	next     atomic.Uint64
	ingest   Ingester
	cache    SubjectCache
	limiter  *rate.Limiter
}

// Ingester receives normalized courses for upsert into the canonical
// store, implemented by pkg/ingest.
type Ingester interface {
	UpsertCourses(ctx context.Context, courses []model.Course) (worker.UpsertCounts, error)
}

// SubjectCache persists the per-term subject list, implemented by
// pkg/db's TermStore. The ERP commonly stops serving a subject listing
// once a term falls out of the registration window, so past/archived
// terms fall back to whatever was last cached for them instead of an
// empty result.
type SubjectCache interface {
	CachedSubjects(ctx context.Context, termCode string) ([]string, error)
	CacheSubjects(ctx context.Context, termCode string, subjects []string) error
}

// New builds an Adapter with a pool of sessionCount independent cookie-jar
// sessions, round-robined to spread load across upstream server affinity.
// cache may be nil, in which case SubjectsForTerm always hits the ERP
// directly regardless of term category. requestsPerSecond/burst configure
// the shared limiter every session waits on before issuing a request; a
// non-positive requestsPerSecond means unlimited.
func New(baseURL string, sessionCount int, ingest Ingester, cache SubjectCache, requestsPerSecond float64, burst int) (*Adapter, error) {
	if sessionCount < 1 {
		sessionCount = 1
	}
	sessions := make([]*http.Client, sessionCount)
	for i := range sessions {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("erp adapter: new cookie jar: %w", err)
		}
		sessions[i] = &http.Client{Jar: jar}
	}
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return &Adapter{baseURL: baseURL, sessions: sessions, ingest: ingest, cache: cache, limiter: limiter}, nil
}

func (a *Adapter) session() *http.Client {
	i := a.next.Add(1) % uint64(len(a.sessions))
	return a.sessions[i]
}

// invalidSessionHeader is the upstream signal that a session cookie is no
// longer accepted and must be re-established.
const invalidSessionHeader = "X-Session-Invalid"

func (a *Adapter) get(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	if err := a.waitLimit(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "build request", err)
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := a.session().Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "erp request failed", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get(invalidSessionHeader) != "" {
		return nil, apperrors.New(apperrors.KindInvalidUpstreamSession, "erp session invalidated by upstream")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, apperrors.New(apperrors.KindRateLimited, "erp rate limited").WithRetryAfter(retryAfter)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.KindTransport, fmt.Sprintf("erp returned status %d", resp.StatusCode))
	}

	var buf []byte
	buf, err = readAll(resp)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "reading erp response body", err)
	}
	return buf, nil
}

func readAll(resp *http.Response) ([]byte, error) {
	const maxBody = 32 << 20
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if len(buf) > maxBody {
				return nil, fmt.Errorf("erp response exceeded %d bytes", maxBody)
			}
		}
		if err != nil {
			if err.Error() == "EOF" {
				return buf, nil
			}
			return buf, err
		}
	}
}

func parseJSON(path string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		offset := 0
		if se, ok := err.(*json.SyntaxError); ok {
			offset = int(se.Offset)
		}
		return apperrors.Wrap(apperrors.KindParse, "erp json decode failed", err).
			WithParseContext(path, string(raw), offset)
	}
	return nil
}

// EncodeFilter produces a stable string encoding of a course-search filter
// map: sorted keys, "k=v" pairs joined by "&", so the same logical filter
// always hashes to the same fingerprint regardless of map iteration order.
func EncodeFilter(filter map[string]string) string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+filter[k])
	}
	return strings.Join(parts, "&")
}

// FilterFingerprint hashes the stable encoding, for use as a cache key.
func FilterFingerprint(filter map[string]string) string {
	sum := sha256.Sum256([]byte(EncodeFilter(filter)))
	return hex.EncodeToString(sum[:])
}

// courseDTO mirrors the ERP's course-search response shape.
type courseDTO struct {
	TermCode            string   `json:"term_code"`
	CRN                 string   `json:"crn"`
	Subject             string   `json:"subject"`
	CourseNumber        string   `json:"course_number"`
	Title               string   `json:"title"`
	Sequence            string   `json:"sequence"`
	EnrollmentCurrent   int      `json:"enrollment_current"`
	EnrollmentMax       int      `json:"enrollment_max"`
	WaitCount           int      `json:"wait_count"`
	WaitCapacity        int      `json:"wait_capacity"`
	CreditsLow          float64  `json:"credits_low"`
	CreditsHigh         float64  `json:"credits_high"`
	InstructionalMethod string   `json:"instructional_method"`
	Campus              string   `json:"campus"`
	PartOfTerm          string   `json:"part_of_term"`
	LinkID              string   `json:"link_id"`
	Attributes          []string `json:"attributes"`
	InstructorIDs       []int32  `json:"instructor_ids"`
	Meetings            []meetingDTO `json:"meetings"`
}

type meetingDTO struct {
	DaysMask  uint8  `json:"days_mask"`
	Begin     string `json:"begin"`
	End       string `json:"end"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Building  string `json:"building"`
	Room      string `json:"room"`
	Campus    string `json:"campus"`
}

type searchResponse struct {
	Courses []courseDTO `json:"courses"`
	HasMore bool        `json:"has_more"`
}

// termDTO mirrors the ERP's term-catalog response shape.
type termDTO struct {
	Code                 string `json:"code"`
	Description          string `json:"description"`
	IsArchived           bool   `json:"is_archived"`
	IsEnabledForScraping bool   `json:"is_enabled_for_scraping"`
}

// FetchTerms fetches the full term catalog, for the scheduler's term-sync
// SubSync (spec §4.8, cadence `scheduler.term_sync`).
func (a *Adapter) FetchTerms(ctx context.Context) ([]model.Term, error) {
	raw, err := a.get(ctx, "/terms", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Terms []termDTO `json:"terms"`
	}
	if err := parseJSON("terms", raw, &out); err != nil {
		return nil, err
	}
	terms := make([]model.Term, len(out.Terms))
	for i, t := range out.Terms {
		terms[i] = model.Term{
			Code:                 t.Code,
			Description:          t.Description,
			IsArchived:           t.IsArchived,
			IsEnabledForScraping: t.IsEnabledForScraping,
		}
	}
	return terms, nil
}

// SubjectsForTerm implements scheduler.SubjectSource. Current and future
// terms always query the ERP live and refresh the persisted cache behind
// it; past and archived terms prefer the cache, since the ERP frequently
// drops a subject listing once registration for that term has closed,
// falling back to a live query when the cache lookup fails or returns
// nothing.
func (a *Adapter) SubjectsForTerm(ctx context.Context, term model.Term, category model.TermCategory) ([]string, error) {
	if category == model.TermPast || category == model.TermArchived {
		if a.cache != nil {
			cached, err := a.cache.CachedSubjects(ctx, term.Code)
			if err != nil {
				slog.Warn("subject cache lookup failed, falling back to live query", "term", term.Code, "error", err)
			} else if len(cached) > 0 {
				return cached, nil
			}
		}
	}

	subjects, err := a.fetchSubjectsLive(ctx, term.Code)
	if err != nil {
		return nil, err
	}
	if a.cache != nil && len(subjects) > 0 {
		if err := a.cache.CacheSubjects(ctx, term.Code, subjects); err != nil {
			slog.Warn("failed to persist subject cache", "term", term.Code, "error", err)
		}
	}
	return subjects, nil
}

func (a *Adapter) fetchSubjectsLive(ctx context.Context, termCode string) ([]string, error) {
	raw, err := a.get(ctx, "/subjects", map[string]string{"term": termCode})
	if err != nil {
		return nil, err
	}
	var out struct {
		Subjects []string `json:"subjects"`
	}
	if err := parseJSON("subjects", raw, &out); err != nil {
		return nil, err
	}
	return out.Subjects, nil
}

// FetchSubjectCourses fetches every course in (subject, term), paging at
// PageSize until the upstream reports no more results.
func (a *Adapter) FetchSubjectCourses(ctx context.Context, subject, term string) ([]model.Course, error) {
	var all []model.Course
	offset := 0
	for {
		raw, err := a.get(ctx, "/courses/search", map[string]string{
			"subject": subject,
			"term":    term,
			"limit":   strconv.Itoa(PageSize),
			"offset":  strconv.Itoa(offset),
		})
		if err != nil {
			return nil, err
		}
		var page searchResponse
		if err := parseJSON("courses/search", raw, &page); err != nil {
			return nil, err
		}
		for _, dto := range page.Courses {
			all = append(all, toCourse(dto))
		}
		if !page.HasMore || len(page.Courses) == 0 {
			break
		}
		offset += PageSize
	}
	return all, nil
}

func (a *Adapter) waitLimit(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "erp rate limiter wait", err)
	}
	return nil
}

func toCourse(dto courseDTO) model.Course {
	c := model.Course{
		TermCode:            dto.TermCode,
		CRN:                 dto.CRN,
		Subject:             dto.Subject,
		CourseNumber:        dto.CourseNumber,
		Title:               dto.Title,
		Sequence:            dto.Sequence,
		EnrollmentCurrent:   dto.EnrollmentCurrent,
		EnrollmentMax:       dto.EnrollmentMax,
		WaitCount:           dto.WaitCount,
		WaitCapacity:        dto.WaitCapacity,
		Credits:             model.CreditHours{Low: dto.CreditsLow, High: dto.CreditsHigh},
		InstructionalMethod: dto.InstructionalMethod,
		Campus:              dto.Campus,
		PartOfTerm:          dto.PartOfTerm,
		LinkID:              dto.LinkID,
		Attributes:          dto.Attributes,
		InstructorIDs:       dto.InstructorIDs,
	}
	for _, m := range dto.Meetings {
		begin, _ := snapshot.ParseTime(m.Begin)
		end, _ := snapshot.ParseTime(m.End)
		start, _ := snapshot.ParseDate(m.StartDate)
		stop, _ := snapshot.ParseDate(m.EndDate)
		c.Meetings = append(c.Meetings, model.MeetingTime{
			Days:         model.WeekdayMask(m.DaysMask),
			BeginMinutes: begin,
			EndMinutes:   end,
			StartDate:    start,
			EndDate:      stop,
			Building:     m.Building,
			Room:         m.Room,
			Campus:       m.Campus,
		})
	}
	return c
}

// Process implements worker.Processor for target_type "subject".
func (a *Adapter) Process(ctx context.Context, job model.Job) (worker.UpsertCounts, error) {
	var payload model.SubjectJobPayload
	if err := json.Unmarshal(job.TargetPayload, &payload); err != nil {
		return worker.UpsertCounts{}, apperrors.Wrap(apperrors.KindCorruptedJobPayload, "malformed subject job payload", err)
	}

	courses, err := a.FetchSubjectCourses(ctx, payload.Subject, payload.Term)
	if err != nil {
		return worker.UpsertCounts{}, err
	}
	return a.ingest.UpsertCourses(ctx, courses)
}
