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

import "fmt"

// dynamics365Tools covers the CRM/ERP views agents most often ask a
// Dynamics 365 backend for: customer 360, pipeline and order rollups.
func dynamics365Tools() []Tool {
	return []Tool{
		{
			Name:        "get_customer_360",
			Description: "Comprehensive customer information including contacts, opportunities and orders",
			Params: []Param{
				{Name: "account_id", Type: "string", Required: true, Description: "Account ID or name fragment"},
				{Name: "include_activities", Type: "boolean", Default: true},
			},
			build: buildCustomer360,
		},
		{
			Name:        "get_sales_pipeline",
			Description: "Sales pipeline summary with open opportunities by stage",
			Params: []Param{
				{Name: "owner_id", Type: "string", Description: "Filter by owner/salesperson"},
				{Name: "date_range_days", Type: "integer", Default: 90, Description: "Days to look back"},
			},
			build: buildSalesPipeline,
		},
		{
			Name:        "get_order_summary",
			Description: "Order summary with monthly totals and invoiced breakdown",
			Params: []Param{
				{Name: "customer_id", Type: "string", Description: "Filter by customer"},
				{Name: "status", Type: "string", Description: "Filter by status code"},
				{Name: "date_range_days", Type: "integer", Default: 30},
			},
			build: buildOrderSummary,
		},
	}
}

func buildCustomer360(args map[string]any) (string, []any, error) {
	accountID, _, err := argString(args, "account_id")
	if err != nil {
		return "", nil, err
	}

	includeActivities := true
	if v, ok := args["include_activities"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return "", nil, fmt.Errorf("argument %q must be a boolean", "include_activities")
		}
		includeActivities = b
	}

	params := []any{accountID, "%" + accountID + "%"}
	activitySelect := ""
	activityJoin := ""
	if includeActivities {
		activitySelect = `,
    COALESCE(ca.activity_count, 0) AS activity_count`
		activityJoin = `
LEFT JOIN (
    SELECT ap.regardingobjectid, COUNT(*) AS activity_count
    FROM activitypointer ap
    GROUP BY ap.regardingobjectid
) ca ON ci.accountid = ca.regardingobjectid`
	}

	sql := fmt.Sprintf(`WITH CustomerInfo AS (
    SELECT a.accountid, a.name AS account_name, a.telephone1, a.emailaddress1,
           a.address1_city, a.address1_stateorprovince, a.revenue,
           a.numberofemployees, a.industrycode
    FROM account a
    WHERE a.accountid = $1 OR a.name LIKE $2
),
CustomerContacts AS (
    SELECT c.parentcustomerid, COUNT(*) AS contact_count
    FROM contact c
    WHERE c.parentcustomerid IN (SELECT accountid FROM CustomerInfo)
    GROUP BY c.parentcustomerid
),
CustomerOpportunities AS (
    SELECT o.customerid, COUNT(*) AS opportunity_count,
           SUM(o.estimatedvalue) AS total_pipeline_value,
           SUM(CASE WHEN o.statecode = 1 THEN o.actualvalue ELSE 0 END) AS won_value
    FROM opportunity o
    WHERE o.customerid IN (SELECT accountid FROM CustomerInfo)
    GROUP BY o.customerid
),
CustomerOrders AS (
    SELECT so.customerid, COUNT(*) AS order_count, SUM(so.totalamount) AS total_order_value
    FROM salesorder so
    WHERE so.customerid IN (SELECT accountid FROM CustomerInfo)
    GROUP BY so.customerid
)
SELECT ci.*,
    COALESCE(cc.contact_count, 0) AS contact_count,
    COALESCE(co.opportunity_count, 0) AS opportunity_count,
    COALESCE(co.total_pipeline_value, 0) AS pipeline_value,
    COALESCE(co.won_value, 0) AS won_value,
    COALESCE(cord.order_count, 0) AS order_count,
    COALESCE(cord.total_order_value, 0) AS total_orders%s
FROM CustomerInfo ci
LEFT JOIN CustomerContacts cc ON ci.accountid = cc.parentcustomerid
LEFT JOIN CustomerOpportunities co ON ci.accountid = co.customerid
LEFT JOIN CustomerOrders cord ON ci.accountid = cord.customerid%s`,
		activitySelect, activityJoin)

	return sql, params, nil
}

func buildSalesPipeline(args map[string]any) (string, []any, error) {
	days, _, err := argInt(args, "date_range_days")
	if err != nil {
		return "", nil, err
	}

	params := []any{days}
	ownerFilter := ""
	if owner, ok, err := argString(args, "owner_id"); err != nil {
		return "", nil, err
	} else if ok {
		params = append(params, owner)
		ownerFilter = fmt.Sprintf("\n  AND o.ownerid = $%d", len(params))
	}

	sql := fmt.Sprintf(`SELECT o.salesstage, o.salesstagecode,
    COUNT(*) AS opportunity_count,
    SUM(o.estimatedvalue) AS total_value,
    AVG(o.estimatedvalue) AS avg_deal_size,
    AVG(o.closeprobability) AS avg_probability,
    SUM(o.estimatedvalue * o.closeprobability / 100) AS weighted_value
FROM opportunity o
WHERE o.statecode = 0
  AND o.createdon >= DATEADD(day, -$1, GETDATE())%s
GROUP BY o.salesstage, o.salesstagecode
ORDER BY o.salesstagecode`, ownerFilter)

	return sql, params, nil
}

func buildOrderSummary(args map[string]any) (string, []any, error) {
	days, _, err := argInt(args, "date_range_days")
	if err != nil {
		return "", nil, err
	}

	params := []any{days}
	filters := ""
	if customer, ok, err := argString(args, "customer_id"); err != nil {
		return "", nil, err
	} else if ok {
		params = append(params, customer)
		filters += fmt.Sprintf("\n  AND so.customerid = $%d", len(params))
	}
	if status, ok, err := argString(args, "status"); err != nil {
		return "", nil, err
	} else if ok {
		params = append(params, status)
		filters += fmt.Sprintf("\n  AND so.statuscode = $%d", len(params))
	}

	sql := fmt.Sprintf(`SELECT FORMAT(so.createdon, 'yyyy-MM') AS order_month,
    COUNT(*) AS order_count,
    SUM(so.totalamount) AS total_amount,
    AVG(so.totalamount) AS avg_order_value,
    SUM(CASE WHEN so.statuscode = 3 THEN 1 ELSE 0 END) AS invoiced_count,
    SUM(CASE WHEN so.statuscode = 3 THEN so.totalamount ELSE 0 END) AS invoiced_amount
FROM salesorder so
WHERE so.createdon >= DATEADD(day, -$1, GETDATE())%s
GROUP BY FORMAT(so.createdon, 'yyyy-MM')
ORDER BY order_month DESC`, filters)

	return sql, params, nil
}
