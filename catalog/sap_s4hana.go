// Copyright 2025 SQLGate Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"fmt"
	"strings"
)

// sapS4HANATools queries the released CDS views (I_* interface views)
// rather than raw tables, so templates survive S/4HANA upgrades.
func sapS4HANATools() []Tool {
	return []Tool{
		{
			Name:        "get_financial_summary",
			Description: "Financial summary from the FI module, grouped by G/L account",
			Params: []Param{
				{Name: "company_code", Type: "string", Required: true, Description: "SAP company code"},
				{Name: "fiscal_year", Type: "string", Required: true, Description: "Fiscal year (YYYY)"},
				{Name: "fiscal_period", Type: "string", Description: "Fiscal period"},
			},
			build: buildFinancialSummary,
		},
		{
			Name:        "get_sales_orders",
			Description: "Sales order overview from the SD module",
			Params: []Param{
				{Name: "sales_org", Type: "string", Required: true, Description: "Sales organization"},
				{Name: "customer", Type: "string", Description: "Sold-to party number"},
				{Name: "date_from", Type: "string", Description: "Creation date from (YYYY-MM-DD)"},
				{Name: "date_to", Type: "string", Description: "Creation date to (YYYY-MM-DD)"},
			},
			build: buildSalesOrders,
		},
		{
			Name:        "get_inventory_overview",
			Description: "Material stock overview from the MM module",
			Params: []Param{
				{Name: "plant", Type: "string", Required: true, Description: "Plant code"},
				{Name: "material", Type: "string", Description: "Material number"},
				{Name: "material_group", Type: "string", Description: "Material group"},
			},
			build: buildInventoryOverview,
		},
		{
			Name:        "get_production_orders",
			Description: "Production order status from the PP module",
			Params: []Param{
				{Name: "plant", Type: "string", Required: true, Description: "Production plant"},
				{Name: "status", Type: "string", Description: "Order status: CRTD, REL, CNF, TECO"},
				{Name: "date_from", Type: "string", Description: "Scheduled start from (YYYY-MM-DD)"},
			},
			build: buildProductionOrders,
		},
		{
			Name:        "get_cost_center_report",
			Description: "Cost center actual vs plan from the CO module",
			Params: []Param{
				{Name: "controlling_area", Type: "string", Required: true, Description: "Controlling area"},
				{Name: "fiscal_year", Type: "string", Required: true, Description: "Fiscal year (YYYY)"},
				{Name: "cost_center", Type: "string", Description: "Cost center"},
			},
			build: buildCostCenterReport,
		},
	}
}

func buildFinancialSummary(args map[string]any) (string, []any, error) {
	companyCode, _, err := argString(args, "company_code")
	if err != nil {
		return "", nil, err
	}
	fiscalYear, _, err := argString(args, "fiscal_year")
	if err != nil {
		return "", nil, err
	}

	params := []any{companyCode, fiscalYear}
	periodFilter := ""
	if period, ok, err := argString(args, "fiscal_period"); err != nil {
		return "", nil, err
	} else if ok {
		params = append(params, period)
		periodFilter = fmt.Sprintf("\n  AND fiscalperiod = $%d", len(params))
	}

	sql := fmt.Sprintf(`SELECT companycode, fiscalyear, fiscalperiod,
    glaccount, glaccountname,
    SUM(amountincompanycodecurrency) AS amount,
    companycodecurrency, debitcreditcode
FROM I_GLACCOUNTLINEITEM
WHERE companycode = $1
  AND fiscalyear = $2%s
GROUP BY companycode, fiscalyear, fiscalperiod,
    glaccount, glaccountname,
    companycodecurrency, debitcreditcode
ORDER BY glaccount`, periodFilter)

	return sql, params, nil
}

func buildSalesOrders(args map[string]any) (string, []any, error) {
	salesOrg, _, err := argString(args, "sales_org")
	if err != nil {
		return "", nil, err
	}

	params := []any{salesOrg}
	var filters strings.Builder
	for _, f := range []struct{ arg, column, op string }{
		{"customer", "soldtoparty", "="},
		{"date_from", "salesordercreationdate", ">="},
		{"date_to", "salesordercreationdate", "<="},
	} {
		v, ok, err := argString(args, f.arg)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			continue
		}
		params = append(params, v)
		fmt.Fprintf(&filters, "\n  AND %s %s $%d", f.column, f.op, len(params))
	}

	sql := fmt.Sprintf(`SELECT salesorder, salesordertype, salesorganization,
    distributionchannel, soldtoparty, soldtopartyname,
    salesordercreationdate, requesteddeliverydate,
    overallsdprocessstatus, totalnetamount, transactioncurrency
FROM I_SALESORDER
WHERE salesorganization = $1%s
ORDER BY salesordercreationdate DESC
LIMIT 1000`, filters.String())

	return sql, params, nil
}

func buildInventoryOverview(args map[string]any) (string, []any, error) {
	plant, _, err := argString(args, "plant")
	if err != nil {
		return "", nil, err
	}

	params := []any{plant}
	filters := ""
	if material, ok, err := argString(args, "material"); err != nil {
		return "", nil, err
	} else if ok {
		params = append(params, material)
		filters += fmt.Sprintf("\n  AND material = $%d", len(params))
	}
	if group, ok, err := argString(args, "material_group"); err != nil {
		return "", nil, err
	} else if ok {
		params = append(params, group)
		filters += fmt.Sprintf("\n  AND materialgroup = $%d", len(params))
	}

	sql := fmt.Sprintf(`SELECT material, materialname, plant, storagelocation,
    materialgroup, materialtype,
    SUM(matlwrhsestkqtyinmatlbaseunit) AS total_stock,
    baseunit,
    SUM(valuatedstocktotalvalue) AS stock_value,
    currency
FROM I_MATERIALSTOCKBYWRHSE
WHERE plant = $1%s
GROUP BY material, materialname, plant, storagelocation,
    materialgroup, materialtype, baseunit, currency
ORDER BY material`, filters)

	return sql, params, nil
}

func buildProductionOrders(args map[string]any) (string, []any, error) {
	plant, _, err := argString(args, "plant")
	if err != nil {
		return "", nil, err
	}

	params := []any{plant}
	filters := ""
	if status, ok, err := argString(args, "status"); err != nil {
		return "", nil, err
	} else if ok {
		params = append(params, status)
		filters += fmt.Sprintf("\n  AND manufacturingorderstatus = $%d", len(params))
	}
	if from, ok, err := argString(args, "date_from"); err != nil {
		return "", nil, err
	} else if ok {
		params = append(params, from)
		filters += fmt.Sprintf("\n  AND mfgorderscheduledstartdate >= $%d", len(params))
	}

	sql := fmt.Sprintf(`SELECT manufacturingorder, manufacturingordertype, material,
    productionplant, manufacturingorderstatus,
    totalquantity, manufacturingorderunit,
    mfgorderscheduledstartdate, mfgorderscheduledenddate,
    mfgorderactualreleasedate
FROM I_MANUFACTURINGORDER
WHERE productionplant = $1%s
ORDER BY mfgorderscheduledstartdate DESC
LIMIT 500`, filters)

	return sql, params, nil
}

func buildCostCenterReport(args map[string]any) (string, []any, error) {
	controllingArea, _, err := argString(args, "controlling_area")
	if err != nil {
		return "", nil, err
	}
	fiscalYear, _, err := argString(args, "fiscal_year")
	if err != nil {
		return "", nil, err
	}

	params := []any{controllingArea, fiscalYear}
	ccFilter := ""
	if cc, ok, err := argString(args, "cost_center"); err != nil {
		return "", nil, err
	} else if ok {
		params = append(params, cc)
		ccFilter = fmt.Sprintf("\n  AND costcenter = $%d", len(params))
	}

	sql := fmt.Sprintf(`SELECT controllingarea, costcenter, costcentername,
    costelement, costelementname, fiscalyear,
    SUM(CASE WHEN valuetype = '010' THEN amountincontrollingareacurrency ELSE 0 END) AS actual_amount,
    SUM(CASE WHEN valuetype = '020' THEN amountincontrollingareacurrency ELSE 0 END) AS plan_amount,
    controllingareacurrency
FROM I_COSTCENTERACTUALDATA
WHERE controllingarea = $1
  AND fiscalyear = $2%s
GROUP BY controllingarea, costcenter, costcentername,
    costelement, costelementname, fiscalyear,
    controllingareacurrency
ORDER BY costcenter, costelement`, ccFilter)

	return sql, params, nil
}
