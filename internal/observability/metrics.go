package observability

import "expvar"

// Counters published under /debug/vars.
var (
	RequestsTotal = expvar.NewInt("requests_total")
	Responses2xx  = expvar.NewInt("responses_2xx")
	Responses4xx  = expvar.NewInt("responses_4xx")
	Responses5xx  = expvar.NewInt("responses_5xx")

	ScansTotal          = expvar.NewInt("scans_total")
	ScansFailed         = expvar.NewInt("scans_failed")
	ScansSuperseded     = expvar.NewInt("scans_superseded")
	DictionariesLoaded  = expvar.NewInt("dictionaries_loaded")
	DictionariesIndexed = expvar.NewInt("dictionaries_indexed")
	IndexReclaimed      = expvar.NewInt("index_reclaimed")
	PrefixQueries       = expvar.NewInt("prefix_queries")
	StaleResults        = expvar.NewInt("stale_results")
	ArticleLookups      = expvar.NewInt("article_lookups")
	ArticleCacheHits    = expvar.NewInt("article_cache_hits")
)

func recordStatus(code int) {
	RequestsTotal.Add(1)
	switch code / 100 {
	case 2:
		Responses2xx.Add(1)
	case 4:
		Responses4xx.Add(1)
	case 5:
		Responses5xx.Add(1)
	}
}
