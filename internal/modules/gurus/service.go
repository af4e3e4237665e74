package gurus

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/watchlist"
)

// backfillYears is how far a sync reaches back. Re-running is idempotent:
// already-stored accession numbers are skipped.
const backfillYears = 5

// shareEpsilon absorbs float noise when comparing share counts across
// quarters.
const shareEpsilon = 1e-6

// FilingSource is the provider slice the sync needs. Implemented by the
// market-data router.
type FilingSource interface {
	Filings13F(ctx context.Context, cik, since string) ([]domain.InvestorFiling, error)
	FilingHoldings(ctx context.Context, cik, accessionNo string) ([]domain.FilingPosition, error)
}

// WatchlistSource supplies the user's stocks for resonance and for company
// name to ticker discovery.
type WatchlistSource interface {
	List() ([]watchlist.Stock, error)
}

// Service owns tracked investors: sync, portfolio views, resonance.
type Service struct {
	repo   *Repository
	source FilingSource
	stocks WatchlistSource
	clock  domain.Clock
	log    zerolog.Logger
}

// NewService creates a gurus service.
func NewService(repo *Repository, source FilingSource, stocks WatchlistSource, clock domain.Clock, log zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Service{
		repo:   repo,
		source: source,
		stocks: stocks,
		clock:  clock,
		log:    log.With().Str("service", "gurus").Logger(),
	}
}

// GuruSummary is a guru with its stored filing count.
type GuruSummary struct {
	Guru
	Filings int `json:"filings"`
}

// Gurus returns every tracked investor with its filing count.
func (s *Service) Gurus() ([]GuruSummary, error) {
	gurus, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.FilingCounts()
	if err != nil {
		return nil, err
	}

	out := make([]GuruSummary, 0, len(gurus))
	for _, g := range gurus {
		out = append(out, GuruSummary{Guru: g, Filings: counts[g.CIK]})
	}
	return out, nil
}

// AddGuru starts tracking an investor by CIK.
func (s *Service) AddGuru(cik, name string) (*Guru, error) {
	normalized, err := NormalizeCIK(cik)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Validationf("guru name is required")
	}

	existing, err := s.repo.Get(normalized)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.Conflictf("guru %s is already tracked", normalized)
	}

	if err := s.repo.Create(Guru{CIK: normalized, Name: name}); err != nil {
		return nil, err
	}
	s.log.Info().Str("cik", normalized).Str("name", name).Msg("guru added")
	return s.repo.Get(normalized)
}

// RemoveGuru stops tracking an investor and drops its filings.
func (s *Service) RemoveGuru(cik string) error {
	normalized, err := NormalizeCIK(cik)
	if err != nil {
		return err
	}
	ok, err := s.repo.Delete(normalized)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundf("guru %s not found", normalized)
	}
	return nil
}

// SyncAll syncs every active guru. Per-guru failures are recorded in the
// result, never abort the pass.
func (s *Service) SyncAll(ctx context.Context) ([]SyncResult, error) {
	gurus, err := s.repo.GetActive()
	if err != nil {
		return nil, err
	}

	results := make([]SyncResult, 0, len(gurus))
	for _, g := range gurus {
		result, err := s.SyncGuru(ctx, g.CIK)
		if err != nil {
			results = append(results, SyncResult{CIK: g.CIK, Name: g.Name, Error: err.Error()})
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// SyncGuru backfills the last five years of an investor's filings. Stored
// filings are skipped by accession number; a filing whose information table
// cannot be fetched is left for the next pass. New filings get their rows
// derived against the guru's previous filing, then the newest filing is
// promoted to current and ticker mappings are refreshed.
func (s *Service) SyncGuru(ctx context.Context, cik string) (*SyncResult, error) {
	normalized, err := NormalizeCIK(cik)
	if err != nil {
		return nil, err
	}
	guru, err := s.repo.Get(normalized)
	if err != nil {
		return nil, err
	}
	if guru == nil {
		return nil, domain.NotFoundf("guru %s not found", normalized)
	}

	since := s.clock.Now().UTC().AddDate(-backfillYears, 0, 0).Format("2006-01-02")
	filings, err := s.source.Filings13F(ctx, normalized, since)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{CIK: normalized, Name: guru.Name, FilingsFetched: len(filings)}

	// Oldest first, so each filing can compare against its predecessor.
	for i := len(filings) - 1; i >= 0; i-- {
		f := filings[i]

		stored, err := s.repo.FilingByAccession(f.AccessionNo)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			continue
		}

		positions, err := s.source.FilingHoldings(ctx, normalized, f.AccessionNo)
		if err != nil {
			s.log.Warn().Err(err).Str("cik", normalized).Str("accession", f.AccessionNo).
				Msg("information table fetch failed, filing deferred")
			continue
		}
		if len(positions) == 0 {
			s.log.Warn().Str("cik", normalized).Str("accession", f.AccessionNo).
				Msg("filing has no information table rows, skipped")
			continue
		}

		previous, err := s.repo.LatestFilingBefore(normalized, f.ReportDate)
		if err != nil {
			return nil, err
		}
		var previousRows []Holding
		if previous != nil {
			if previousRows, err = s.repo.HoldingsByFiling(previous.ID); err != nil {
				return nil, err
			}
		}

		rows, total := DeriveHoldings(positions, previousRows)
		_, err = s.repo.CreateFiling(Filing{
			GuruCIK:     normalized,
			AccessionNo: f.AccessionNo,
			ReportDate:  f.ReportDate,
			FiledAt:     f.FiledAt,
			TotalValue:  total,
		}, rows)
		if err != nil {
			return nil, err
		}
		result.FilingsAdded++
		result.HoldingsAdded += len(rows)
	}

	if err := s.repo.MarkCurrent(normalized); err != nil {
		return nil, err
	}
	result.TickersMapped = s.discoverTickers()

	s.log.Info().
		Str("cik", normalized).
		Int("fetched", result.FilingsFetched).
		Int("added", result.FilingsAdded).
		Msg("guru sync complete")
	return result, nil
}

// DeriveHoldings turns raw information-table rows into stored holdings.
// Rows are merged by CUSIP first (filers split positions across managers),
// actions compare share counts against the previous filing, and positions
// present before but absent now become synthetic SOLD_OUT rows. Returns
// the rows with the filing's total value.
func DeriveHoldings(positions []domain.FilingPosition, previous []Holding) ([]Holding, float64) {
	type merged struct {
		company string
		value   float64
		shares  float64
	}
	byCusip := make(map[string]*merged)
	order := make([]string, 0, len(positions))
	for _, p := range positions {
		m, ok := byCusip[p.Cusip]
		if !ok {
			m = &merged{company: p.Company}
			byCusip[p.Cusip] = m
			order = append(order, p.Cusip)
		}
		m.value += p.Value
		m.shares += p.Shares
	}

	var total float64
	for _, m := range byCusip {
		total += m.value
	}

	// Previous share counts; sold-out rows from the prior comparison hold
	// zero shares and are not positions.
	prevShares := make(map[string]float64, len(previous))
	prevRow := make(map[string]Holding, len(previous))
	for _, h := range previous {
		if h.Shares > 0 {
			prevShares[h.Cusip] = h.Shares
			prevRow[h.Cusip] = h
		}
	}

	rows := make([]Holding, 0, len(order))
	for _, cusip := range order {
		m := byCusip[cusip]
		h := Holding{
			Cusip:   cusip,
			Company: m.company,
			Value:   m.value,
			Shares:  m.shares,
		}
		if total > 0 {
			h.WeightPct = m.value / total * 100
		}

		prev, held := prevShares[cusip]
		switch {
		case !held:
			h.Action = domain.ActionNewPosition
		case math.Abs(m.shares-prev) <= shareEpsilon:
			h.Action = domain.ActionUnchanged
		case m.shares > prev:
			h.Action = domain.ActionIncreased
			change := (m.shares - prev) / prev * 100
			h.ChangePct = &change
		default:
			h.Action = domain.ActionDecreased
			change := (m.shares - prev) / prev * 100
			h.ChangePct = &change
		}
		rows = append(rows, h)
	}

	for cusip, prev := range prevRow {
		if _, still := byCusip[cusip]; still {
			continue
		}
		change := -100.0
		rows = append(rows, Holding{
			Cusip:     cusip,
			Ticker:    prev.Ticker,
			Company:   prev.Company,
			Action:    domain.ActionSoldOut,
			ChangePct: &change,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		return rows[i].Cusip < rows[j].Cusip
	})
	return rows, total
}

// CurrentFiling returns a guru's current filing and its full history.
func (s *Service) CurrentFiling(cik string) (*Filing, []Filing, error) {
	normalized, err := NormalizeCIK(cik)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireGuru(normalized); err != nil {
		return nil, nil, err
	}

	current, err := s.repo.CurrentFiling(normalized)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, domain.NotFoundf("no filings synced for %s", normalized)
	}
	history, err := s.repo.FilingsByGuru(normalized)
	if err != nil {
		return nil, nil, err
	}
	return current, history, nil
}

// Holdings returns the rows of a guru's current filing, largest first.
func (s *Service) Holdings(cik string) (*Filing, []Holding, error) {
	current, _, err := s.CurrentFiling(cik)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.repo.HoldingsByFiling(current.ID)
	if err != nil {
		return nil, nil, err
	}
	return current, rows, nil
}

// TopPositions returns the n largest current positions of a guru.
func (s *Service) TopPositions(cik string, n int) (*Filing, []Holding, error) {
	if n <= 0 {
		n = 10
	}
	current, rows, err := s.Holdings(cik)
	if err != nil {
		return nil, nil, err
	}

	top := make([]Holding, 0, n)
	for _, h := range rows {
		if h.Action == domain.ActionSoldOut {
			continue
		}
		top = append(top, h)
		if len(top) == n {
			break
		}
	}
	return current, top, nil
}

// QoQ reports the quarter-over-quarter changes of a guru's current filing.
func (s *Service) QoQ(cik string) (*QoQReport, error) {
	normalized, err := NormalizeCIK(cik)
	if err != nil {
		return nil, err
	}
	guru, err := s.repo.Get(normalized)
	if err != nil {
		return nil, err
	}
	if guru == nil {
		return nil, domain.NotFoundf("guru %s not found", normalized)
	}

	current, err := s.repo.CurrentFiling(normalized)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.NotFoundf("no filings synced for %s", normalized)
	}
	rows, err := s.repo.HoldingsByFiling(current.ID)
	if err != nil {
		return nil, err
	}
	previous, err := s.repo.LatestFilingBefore(normalized, current.ReportDate)
	if err != nil {
		return nil, err
	}

	report := &QoQReport{Guru: *guru, Filing: *current, Previous: previous}
	for _, h := range rows {
		switch h.Action {
		case domain.ActionNewPosition:
			report.NewPositions = append(report.NewPositions, h)
		case domain.ActionIncreased:
			report.Increased = append(report.Increased, h)
		case domain.ActionDecreased:
			report.Decreased = append(report.Decreased, h)
		case domain.ActionSoldOut:
			report.SoldOut = append(report.SoldOut, h)
		default:
			report.Unchanged++
		}
	}
	return report, nil
}

// GrandPortfolio aggregates every guru's current filing into one combined
// portfolio: one query for filings, one for rows, joined in memory.
func (s *Service) GrandPortfolio() ([]GrandPosition, error) {
	filings, err := s.repo.CurrentFilings()
	if err != nil {
		return nil, err
	}
	if len(filings) == 0 {
		return []GrandPosition{}, nil
	}

	gurus, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}
	nameByCIK := make(map[string]string, len(gurus))
	for _, g := range gurus {
		nameByCIK[g.CIK] = g.Name
	}

	ids := make([]int64, len(filings))
	cikByFiling := make(map[int64]string, len(filings))
	for i, f := range filings {
		ids[i] = f.ID
		cikByFiling[f.ID] = f.GuruCIK
	}
	holdings, err := s.repo.HoldingsByFilings(ids)
	if err != nil {
		return nil, err
	}

	agg := make(map[string]*GrandPosition)
	var order []string
	for filingID, rows := range holdings {
		guruName := nameByCIK[cikByFiling[filingID]]
		for _, h := range rows {
			if h.Action == domain.ActionSoldOut {
				continue
			}
			p, ok := agg[h.Cusip]
			if !ok {
				p = &GrandPosition{Cusip: h.Cusip, Ticker: h.Ticker, Company: h.Company}
				agg[h.Cusip] = p
				order = append(order, h.Cusip)
			}
			p.TotalValue += h.Value
			p.Holders++
			p.Gurus = append(p.Gurus, guruName)
		}
	}

	var grandTotal float64
	for _, p := range agg {
		grandTotal += p.TotalValue
	}

	out := make([]GrandPosition, 0, len(order))
	for _, cusip := range order {
		p := agg[cusip]
		if grandTotal > 0 {
			p.WeightPct = p.TotalValue / grandTotal * 100
		}
		sort.Strings(p.Gurus)
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalValue != out[j].TotalValue {
			return out[i].TotalValue > out[j].TotalValue
		}
		return out[i].Cusip < out[j].Cusip
	})
	return out, nil
}

// GreatMinds returns the combined positions held by at least two gurus,
// most crowded first.
func (s *Service) GreatMinds() ([]GrandPosition, error) {
	grand, err := s.GrandPortfolio()
	if err != nil {
		return nil, err
	}

	shared := make([]GrandPosition, 0)
	for _, p := range grand {
		if p.Holders >= 2 {
			shared = append(shared, p)
		}
	}
	sort.SliceStable(shared, func(i, j int) bool {
		if shared[i].Holders != shared[j].Holders {
			return shared[i].Holders > shared[j].Holders
		}
		return shared[i].TotalValue > shared[j].TotalValue
	})
	return shared, nil
}

// Resonance lists the watchlist tickers currently held by at least one
// guru, most held first.
func (s *Service) Resonance() ([]ResonanceRow, error) {
	watched, err := s.watchedTickers()
	if err != nil {
		return nil, err
	}

	holders, err := s.holdersByTicker(false)
	if err != nil {
		return nil, err
	}

	rows := make([]ResonanceRow, 0)
	for ticker := range watched {
		if hs := holders[ticker]; len(hs) > 0 {
			rows = append(rows, ResonanceRow{Ticker: ticker, Holders: hs})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if len(rows[i].Holders) != len(rows[j].Holders) {
			return len(rows[i].Holders) > len(rows[j].Holders)
		}
		return rows[i].Ticker < rows[j].Ticker
	})
	return rows, nil
}

// ResonanceForTicker shows every guru's current stance on one ticker,
// sold-out rows included.
func (s *Service) ResonanceForTicker(ticker string) (*ResonanceRow, error) {
	ticker = watchlist.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, domain.Validationf("ticker is required")
	}

	holders, err := s.holdersByTicker(true)
	if err != nil {
		return nil, err
	}
	return &ResonanceRow{Ticker: ticker, Holders: holders[ticker]}, nil
}

// SeasonHighlights collects notable new positions and exits across current
// filings. Gurus with a single stored filing are excluded: without a
// baseline their whole portfolio reads as new.
func (s *Service) SeasonHighlights(limit int) (*SeasonHighlights, error) {
	if limit <= 0 {
		limit = 5
	}

	counts, err := s.repo.FilingCounts()
	if err != nil {
		return nil, err
	}
	filings, err := s.repo.CurrentFilings()
	if err != nil {
		return nil, err
	}

	gurus, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}
	nameByCIK := make(map[string]string, len(gurus))
	for _, g := range gurus {
		nameByCIK[g.CIK] = g.Name
	}

	var ids []int64
	cikByFiling := make(map[int64]string)
	for _, f := range filings {
		if counts[f.GuruCIK] < 2 {
			continue
		}
		ids = append(ids, f.ID)
		cikByFiling[f.ID] = f.GuruCIK
	}

	holdings, err := s.repo.HoldingsByFilings(ids)
	if err != nil {
		return nil, err
	}

	highlights := &SeasonHighlights{NewPositions: []Highlight{}, SoldOut: []Highlight{}}
	for filingID, rows := range holdings {
		guruName := nameByCIK[cikByFiling[filingID]]
		for _, h := range rows {
			entry := Highlight{Guru: guruName, Company: h.Company, Ticker: h.Ticker, Value: h.Value, WeightPct: h.WeightPct}
			switch h.Action {
			case domain.ActionNewPosition:
				highlights.NewPositions = append(highlights.NewPositions, entry)
			case domain.ActionSoldOut:
				highlights.SoldOut = append(highlights.SoldOut, entry)
			}
		}
	}

	sort.SliceStable(highlights.NewPositions, func(i, j int) bool {
		return highlights.NewPositions[i].Value > highlights.NewPositions[j].Value
	})
	sort.SliceStable(highlights.SoldOut, func(i, j int) bool {
		if highlights.SoldOut[i].Company != highlights.SoldOut[j].Company {
			return highlights.SoldOut[i].Company < highlights.SoldOut[j].Company
		}
		return highlights.SoldOut[i].Guru < highlights.SoldOut[j].Guru
	})
	if len(highlights.NewPositions) > limit {
		highlights.NewPositions = highlights.NewPositions[:limit]
	}
	if len(highlights.SoldOut) > limit {
		highlights.SoldOut = highlights.SoldOut[:limit]
	}
	return highlights, nil
}

// holdersByTicker joins current filings, their rows, and guru names into a
// map keyed by mapped ticker.
func (s *Service) holdersByTicker(includeSoldOut bool) (map[string][]ResonanceHolder, error) {
	filings, err := s.repo.CurrentFilings()
	if err != nil {
		return nil, err
	}
	if len(filings) == 0 {
		return map[string][]ResonanceHolder{}, nil
	}

	gurus, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}
	nameByCIK := make(map[string]string, len(gurus))
	for _, g := range gurus {
		nameByCIK[g.CIK] = g.Name
	}

	ids := make([]int64, len(filings))
	cikByFiling := make(map[int64]string, len(filings))
	for i, f := range filings {
		ids[i] = f.ID
		cikByFiling[f.ID] = f.GuruCIK
	}
	holdings, err := s.repo.HoldingsByFilings(ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]ResonanceHolder)
	for filingID, rows := range holdings {
		cik := cikByFiling[filingID]
		for _, h := range rows {
			if h.Ticker == nil {
				continue
			}
			if h.Action == domain.ActionSoldOut && !includeSoldOut {
				continue
			}
			out[*h.Ticker] = append(out[*h.Ticker], ResonanceHolder{
				CIK:       cik,
				Guru:      nameByCIK[cik],
				Action:    h.Action,
				Value:     h.Value,
				WeightPct: h.WeightPct,
			})
		}
	}
	for ticker := range out {
		hs := out[ticker]
		sort.SliceStable(hs, func(i, j int) bool { return hs[i].Value > hs[j].Value })
		out[ticker] = hs
	}
	return out, nil
}

// watchedTickers returns the set of active watchlist tickers.
func (s *Service) watchedTickers() (map[string]bool, error) {
	stocks, err := s.stocks.List()
	if err != nil {
		return nil, err
	}
	watched := make(map[string]bool, len(stocks))
	for _, stock := range stocks {
		if stock.Active {
			watched[stock.Ticker] = true
		}
	}
	return watched, nil
}

// discoverTickers matches unmapped CUSIPs against watchlist stock names
// and applies the grown map to stored rows, returning the rows updated.
// Matching is by normalized company name, so it only catches the names the
// user actually watches.
func (s *Service) discoverTickers() int {
	stocks, err := s.stocks.List()
	if err != nil {
		s.log.Warn().Err(err).Msg("watchlist read failed, ticker discovery skipped")
		return 0
	}

	index := make(map[string]string, len(stocks))
	for _, stock := range stocks {
		if key := normalizeCompany(stock.Name); key != "" {
			index[key] = stock.Ticker
		}
	}
	if len(index) == 0 {
		return 0
	}

	unmapped, err := s.repo.UnmappedCusips()
	if err != nil {
		s.log.Warn().Err(err).Msg("unmapped cusip read failed, ticker discovery skipped")
		return 0
	}
	for cusip, company := range unmapped {
		ticker, ok := index[normalizeCompany(company)]
		if !ok {
			continue
		}
		if err := s.repo.PutCusip(cusip, ticker); err != nil {
			s.log.Warn().Err(err).Str("cusip", cusip).Msg("cusip mapping write failed")
		}
	}

	applied, err := s.repo.ApplyCusipMap()
	if err != nil {
		s.log.Warn().Err(err).Msg("cusip map apply failed")
		return 0
	}
	return int(applied)
}

func (s *Service) requireGuru(cik string) error {
	guru, err := s.repo.Get(cik)
	if err != nil {
		return err
	}
	if guru == nil {
		return domain.NotFoundf("guru %s not found", cik)
	}
	return nil
}

// NormalizeCIK canonicalizes a CIK to its fixed-width 10-digit form.
func NormalizeCIK(cik string) (string, error) {
	cik = strings.TrimSpace(cik)
	if cik == "" || len(cik) > 10 {
		return "", domain.Validationf("cik must be 1-10 digits")
	}
	for _, r := range cik {
		if r < '0' || r > '9' {
			return "", domain.Validationf("cik must be 1-10 digits")
		}
	}
	return strings.Repeat("0", 10-len(cik)) + cik, nil
}

// companySuffixes are legal-form and share-class tokens dropped when
// normalizing company names for matching.
var companySuffixes = map[string]bool{
	"INC": true, "CORP": true, "CORPORATION": true, "CO": true, "COMPANY": true,
	"LTD": true, "PLC": true, "SA": true, "NV": true, "AG": true,
	"HOLDINGS": true, "HLDGS": true, "GROUP": true, "GRP": true,
	"CL": true, "CLASS": true, "A": true, "B": true, "C": true,
	"ADR": true, "ADS": true, "NEW": true, "DEL": true,
	"COM": true, "ORD": true, "SHS": true, "SPONS": true, "SPONSORED": true,
}

func normalizeCompany(name string) string {
	up := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return ' '
		}
	}, name)

	words := strings.Fields(up)
	for len(words) > 1 && companySuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
