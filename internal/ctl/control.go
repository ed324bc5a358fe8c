package ctl

// Cancel aborts the running scan, tune or rotor move.
func Cancel(baseURL string, jsonOutput bool) error {
	res, err := postCommand(baseURL, "/api/cancel", nil)
	if err != nil {
		return err
	}
	return printResult(res, jsonOutput)
}

// CatalogRefresh forces a TLE download and merges it into the catalog.
func CatalogRefresh(baseURL string, jsonOutput bool) error {
	res, err := postCommand(baseURL, "/api/catalog/refresh", nil)
	if err != nil {
		return err
	}
	return printResult(res, jsonOutput)
}
