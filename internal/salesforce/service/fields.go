package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	sfclient "github.com/smallbiznis/pricedesk/internal/providers/salesforce"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
)

const dateLayout = "2006-01-02"

// localValue converts a Salesforce field value into the column value for
// field. ok is false when the value cannot be stored and should be left
// untouched.
func localValue(field string, raw any) (any, bool) {
	if raw == nil {
		return nil, false
	}
	switch field {
	case "amount":
		switch v := raw.(type) {
		case float64:
			return decimal.NewFromFloat(v), true
		case string:
			d, err := decimal.NewFromString(strings.TrimSpace(v))
			return d, err == nil
		}
		return nil, false
	case "close_date":
		v, ok := raw.(string)
		if !ok {
			return nil, false
		}
		t, err := time.Parse(dateLayout, strings.TrimSpace(v))
		if err != nil {
			return nil, false
		}
		return t, true
	case "currency":
		v, ok := raw.(string)
		v = strings.ToUpper(strings.TrimSpace(v))
		return v, ok && len(v) == 3
	case "stage":
		v, ok := raw.(string)
		if !ok || !knownStage(accountdomain.Stage(v)) {
			return nil, false
		}
		return accountdomain.Stage(v), true
	default:
		switch v := raw.(type) {
		case string:
			return strings.TrimSpace(v), true
		case bool, float64:
			return fmt.Sprint(v), true
		}
		return nil, false
	}
}

func knownStage(stage accountdomain.Stage) bool {
	switch stage {
	case accountdomain.StageProspecting, accountdomain.StageQualified, accountdomain.StageProposal,
		accountdomain.StageNegotiation, accountdomain.StageClosedWon, accountdomain.StageClosedLost:
		return true
	}
	return false
}

// pullValues maps a Salesforce record onto local column values.
func pullValues(mappings []*sfdomain.FieldMapping, rec sfclient.Record) map[string]any {
	values := map[string]any{}
	for _, m := range mappings {
		if v, ok := localValue(m.LocalField, rec[m.RemoteField]); ok {
			values[m.LocalField] = v
		}
	}
	return values
}

func accountField(a *accountdomain.Account, field string) any {
	switch field {
	case "name":
		return a.Name
	case "industry":
		return a.Industry
	case "website":
		return a.Website
	case "billing_country":
		return a.BillingCountry
	case "owner_email":
		return a.OwnerEmail
	}
	return nil
}

func opportunityField(o *accountdomain.Opportunity, field string) any {
	switch field {
	case "name":
		return o.Name
	case "stage":
		return string(o.Stage)
	case "amount":
		return o.Amount.InexactFloat64()
	case "currency":
		return o.Currency
	case "close_date":
		if o.CloseDate == nil {
			return nil
		}
		return o.CloseDate.Format(dateLayout)
	}
	return nil
}

// pushRecord builds the Salesforce payload from a local row.
func pushRecord(mappings []*sfdomain.FieldMapping, get func(string) any) sfclient.Record {
	rec := sfclient.Record{}
	for _, m := range mappings {
		rec[m.RemoteField] = get(m.LocalField)
	}
	return rec
}

func remoteID(rec sfclient.Record) string {
	id, _ := rec["Id"].(string)
	return strings.TrimSpace(id)
}

func selectFields(mappings []*sfdomain.FieldMapping, extra ...string) []string {
	seen := map[string]bool{"Id": true}
	fields := []string{"Id"}
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	for _, m := range mappings {
		add(m.RemoteField)
	}
	for _, f := range extra {
		add(f)
	}
	return fields
}

func filterMappings(all []*sfdomain.FieldMapping, entity sfdomain.Entity, run sfdomain.Direction) []*sfdomain.FieldMapping {
	var out []*sfdomain.FieldMapping
	for _, m := range all {
		if m.Entity == entity && m.Direction.Includes(run) {
			out = append(out, m)
		}
	}
	return out
}
