package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/debuglog"
	"github.com/pders01/fxdigest/internal/fetch"
)

// Provider returns the events between two dd/mm/yyyy dates.
type Provider interface {
	Events(ctx context.Context, from, to string) ([]Event, error)
}

const DefaultEndpoint = "https://www.investing.com/economic-calendar/Service/getCalendarFilteredData"

// InvestingProvider reads the investing.com calendar service, the same
// endpoint the site's calendar page scrolls through.
type InvestingProvider struct {
	client     *fetch.Client
	endpoint   string
	timeZoneID int
	maxPages   int
}

func NewInvestingProvider(client *fetch.Client, cfg config.CalendarConfig) *InvestingProvider {
	p := &InvestingProvider{
		client:     client,
		endpoint:   cfg.Endpoint,
		timeZoneID: cfg.TimeZoneID,
		maxPages:   cfg.MaxPages,
	}
	if p.endpoint == "" {
		p.endpoint = DefaultEndpoint
	}
	if p.timeZoneID == 0 {
		p.timeZoneID = 55
	}
	if p.maxPages <= 0 {
		p.maxPages = 10
	}
	return p
}

type serviceResponse struct {
	Data              string `json:"data"`
	BindScrollHandler bool   `json:"bind_scroll_handler"`
}

func (p *InvestingProvider) Events(ctx context.Context, from, to string) ([]Event, error) {
	start, end, err := ParseRange(from, to)
	if err != nil {
		return nil, err
	}

	session, err := p.client.NewSession()
	if err != nil {
		return nil, err
	}
	if err := p.client.WarmUp(ctx, session); err != nil {
		return nil, err
	}

	form := url.Values{
		"dateFrom":      {start.Format("2006-01-02")},
		"dateTo":        {end.Format("2006-01-02")},
		"timeZone":      {strconv.Itoa(p.timeZoneID)},
		"timeFilter":    {"timeOnly"},
		"currentTab":    {"custom"},
		"submitFilters": {"1"},
		"limit_from":    {"0"},
	}

	var events []Event
	seen := map[string]bool{}
	state := parseState{}

	for page := 1; page <= p.maxPages; page++ {
		body, err := session.PostForm(ctx, "calendar", p.endpoint, form)
		if err != nil {
			return nil, fmt.Errorf("calendar page %d: %w", page, err)
		}

		var resp serviceResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			return nil, fmt.Errorf("decoding calendar page %d: %w", page, err)
		}

		rows, err := parseRows(resp.Data, &state)
		if err != nil {
			return nil, fmt.Errorf("parsing calendar page %d: %w", page, err)
		}
		for _, ev := range rows {
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			events = append(events, ev)
		}

		if !resp.BindScrollHandler || len(rows) == 0 {
			break
		}
		if page == p.maxPages {
			debuglog.Warnf("calendar truncated at %d pages", p.maxPages)
			break
		}

		form.Set("limit_from", "1")
		form.Set("showMore", "true")
		form.Set("byHandler", "true")
		form.Set("submitFilters", "0")
		form.Set("last_time_scope", strconv.FormatInt(state.lastScope, 10))
	}

	return events, nil
}

// parseState carries the current date row across pages.
type parseState struct {
	date      string
	lastScope int64
}

// parseRows reads the table rows of one service response. Date rows set
// the date for the event rows that follow them.
func parseRows(fragment string, state *parseState) ([]Event, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<table><tbody>" + fragment + "</tbody></table>"))
	if err != nil {
		return nil, err
	}

	var events []Event
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		rowID := row.AttrOr("id", "")
		if !strings.HasPrefix(rowID, "eventRowId_") {
			day := row.Find("td.theDay").First()
			if scope, ok := parseDayScope(day.AttrOr("id", "")); ok {
				state.lastScope = scope
				state.date = time.Unix(scope, 0).UTC().Format(DateLayout)
			}
			return
		}

		id := strings.TrimPrefix(rowID, "eventRowId_")
		ev := Event{ID: id, Date: state.date}
		var currency, actual, forecast, previous string

		row.Find("td").Each(func(_ int, td *goquery.Selection) {
			tdID := td.AttrOr("id", "")
			switch {
			case td.HasClass("first") && td.HasClass("left"):
				ev.Time = strings.TrimSpace(td.Text())
				if strings.EqualFold(ev.Time, AllDay) {
					ev.Time = AllDay
				}
			case td.HasClass("flagCur"):
				ev.Zone = strings.ToLower(strings.TrimSpace(td.Find("span").First().AttrOr("title", "")))
				currency = strings.TrimSpace(td.Text())
			case td.HasClass("sentiment"):
				if key, ok := td.Attr("data-img_key"); ok {
					ev.Importance = importanceFromBulls(strings.TrimPrefix(key, "bull"))
				}
			case td.HasClass("left") && td.HasClass("event"):
				ev.Event = strings.TrimSpace(td.Text())
			case tdID == "eventActual_"+id:
				actual = cleanValue(td.Text())
			case tdID == "eventForecast_"+id:
				forecast = cleanValue(td.Text())
			case tdID == "eventPrevious_"+id:
				previous = cleanValue(td.Text())
			}
		})

		ev.Currency = optional(currency)
		ev.Actual = optional(actual)
		ev.Forecast = optional(forecast)
		ev.Previous = optional(previous)
		events = append(events, ev)
	})

	return events, nil
}

func parseDayScope(id string) (int64, bool) {
	if !strings.HasPrefix(id, "theDay") {
		return 0, false
	}
	scope, err := strconv.ParseInt(strings.TrimPrefix(id, "theDay"), 10, 64)
	if err != nil {
		return 0, false
	}
	return scope, true
}

// cleanValue trims a value cell. Empty cells hold a lone &nbsp;, which
// TrimSpace removes.
func cleanValue(s string) string {
	return strings.TrimSpace(s)
}
