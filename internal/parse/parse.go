// Package parse turns Salesforce "Lead Validation" task descriptions into
// structured validation records. Descriptions carry delimited text sections
// plus a raw JSON block from the upstream validator; both are best-effort:
// whatever matches is kept, and only a description yielding nothing at all
// marks the record with a parse error. Marked records are stored with their
// raw text, never dropped.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/model"
)

// Task is the raw task envelope handed to the parser: CRM metadata plus the
// free-form description to parse.
type Task struct {
	ID               string
	WhoID            string
	WhatID           string
	Subject          string
	LeadSource       string
	Company          string
	Email            string
	Description      string
	CreatedDate      time.Time
	LastModifiedDate time.Time
}

// Section delimiters are exact; only field labels inside them are matched
// case-insensitively. A section runs to the next "=== " header or the end of
// the description.
var (
	leadSectionRe    = sectionRe("LEAD VALIDATION RESULTS")
	phoneSectionRe   = sectionRe("PHONE VALIDATION")
	emailSectionRe   = sectionRe("EMAIL VALIDATION")
	summarySectionRe = sectionRe("EMAIL SUMMARY")
	rawAPISectionRe  = sectionRe("RAW API RESPONSE")
)

func sectionRe(title string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)=== ` + title + ` ===(.*?)(?:=== |$)`)
}

var (
	leadScoreRe      = regexp.MustCompile(`(?i)Lead Score:\s*(\d+)`)
	qualityScoreRe   = regexp.MustCompile(`(?i)Quality Score:\s*(\d+)`)
	dataQualityRe    = regexp.MustCompile(`(?i)Data Quality:\s*(\d+)%`)
	fraudScoreRe     = regexp.MustCompile(`(?i)Fraud Score:\s*(\d+)`)
	recommendationRe = regexp.MustCompile(`(?i)Recommendation:\s*(\w+)`)
	qualityLevelRe   = regexp.MustCompile(`(?i)Quality Level:\s*(\w+)`)
	fraudRiskRe      = regexp.MustCompile(`(?i)Fraud Risk:\s*(\w+)`)
	marketSegmentRe  = regexp.MustCompile(`(?i)Market Segment:\s*(.+)`)

	phoneValidRe     = regexp.MustCompile(`(?i)Phone Valid:\s*(true|false)`)
	phoneCarrierRe   = regexp.MustCompile(`(?i)Carrier:\s*(.+)`)
	phoneTypeRe      = regexp.MustCompile(`(?i)Type:\s*(.+)`)
	nationalFormatRe = regexp.MustCompile(`(?i)National Format:\s*(.+)`)

	emailValidRe     = regexp.MustCompile(`(?i)Email Valid:\s*(true|false)`)
	emailSendableRe  = regexp.MustCompile(`(?i)Email Sendable:\s*(true|false)`)
	bounceLikelyRe   = regexp.MustCompile(`(?i)Bounce Likely:\s*(true|false)`)
	gibberishScoreRe = regexp.MustCompile(`(?i)Gibberish Score:\s*(.+)`)

	totalEmailsRe       = regexp.MustCompile(`(?i)Total Emails:\s*(\d+)`)
	validEmailsRe       = regexp.MustCompile(`(?i)Valid Emails:\s*(\d+)`)
	sendableEmailsRe    = regexp.MustCompile(`(?i)Sendable Emails:\s*(\d+)`)
	emailQualityScoreRe = regexp.MustCompile(`(?i)Email Quality Score:\s*(\d+)`)
)

// Record parses one task into a validation record. The record is always
// returned; a description that yields no usable data at all is marked with a
// parse error and keeps its raw text for later inspection.
func Record(t Task) model.ValidationRecord {
	rec := model.ValidationRecord{
		TaskID:           t.ID,
		LeadID:           t.WhoID,
		WhatID:           t.WhatID,
		Subject:          t.Subject,
		Source:           t.LeadSource,
		LeadCompany:      t.Company,
		LeadEmail:        t.Email,
		CreatedDate:      t.CreatedDate,
		LastModifiedDate: t.LastModifiedDate,
	}
	rec.ValidatedAt = t.LastModifiedDate
	if rec.ValidatedAt.IsZero() {
		rec.ValidatedAt = t.CreatedDate
	}

	desc := t.Description
	if strings.TrimSpace(desc) == "" {
		return rec
	}
	rec.RawDescription = desc

	fields := parseLeadSection(&rec, desc)
	fields += parsePhoneSection(&rec, desc)
	fields += parseEmailSection(&rec, desc)
	fields += parseSummarySection(&rec, desc)

	applied, jsonErr := parseAPIResponse(&rec, desc)
	if jsonErr != nil {
		if !applied && fields == 0 {
			rec.ParseError = fmt.Sprintf("description did not parse: %v", jsonErr)
			return rec
		}
		zap.L().Warn("parse: raw api response unusable",
			zap.String("task_id", t.ID),
			zap.Error(jsonErr))
	}
	if fields == 0 && !applied {
		rec.ParseError = "description matched no validation sections"
	}
	return rec
}

func parseLeadSection(rec *model.ValidationRecord, desc string) int {
	content, ok := sectionContent(leadSectionRe, desc)
	if !ok {
		return 0
	}
	n := 0
	rec.LeadScore = matchFloat(leadScoreRe, content, &n)
	rec.QualityScore = matchFloat(qualityScoreRe, content, &n)
	rec.DataQuality = matchFloat(dataQualityRe, content, &n)
	rec.FraudScore = matchFloat(fraudScoreRe, content, &n)
	rec.Recommendation = matchString(recommendationRe, content, &n)
	rec.QualityLevel = matchString(qualityLevelRe, content, &n)
	rec.FraudRisk = matchString(fraudRiskRe, content, &n)
	rec.MarketSegment = matchString(marketSegmentRe, content, &n)
	return n
}

func parsePhoneSection(rec *model.ValidationRecord, desc string) int {
	content, ok := sectionContent(phoneSectionRe, desc)
	if !ok {
		return 0
	}
	n := 0
	rec.PhoneValid = matchBool(phoneValidRe, content, &n)
	rec.PhoneCarrier = matchString(phoneCarrierRe, content, &n)
	rec.PhoneType = matchString(phoneTypeRe, content, &n)
	rec.PhoneNationalFormat = matchString(nationalFormatRe, content, &n)
	return n
}

func parseEmailSection(rec *model.ValidationRecord, desc string) int {
	content, ok := sectionContent(emailSectionRe, desc)
	if !ok {
		return 0
	}
	n := 0
	rec.EmailValid = matchBool(emailValidRe, content, &n)
	rec.EmailSendable = matchBool(emailSendableRe, content, &n)
	rec.BounceLikely = matchBool(bounceLikelyRe, content, &n)
	rec.GibberishScore = matchString(gibberishScoreRe, content, &n)
	return n
}

func parseSummarySection(rec *model.ValidationRecord, desc string) int {
	content, ok := sectionContent(summarySectionRe, desc)
	if !ok {
		return 0
	}
	n := 0
	rec.TotalEmails = matchInt(totalEmailsRe, content, &n)
	rec.ValidEmails = matchInt(validEmailsRe, content, &n)
	rec.SendableEmails = matchInt(sendableEmailsRe, content, &n)
	rec.EmailQualityScore = matchFloat(emailQualityScoreRe, content, &n)
	return n
}

func sectionContent(re *regexp.Regexp, desc string) (string, bool) {
	m := re.FindStringSubmatch(desc)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// matchString returns the trimmed capture, skipping absent fields and the
// literal "null" the validator emits for unknowns. n counts matches.
func matchString(re *regexp.Regexp, content string, n *int) string {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	v := strings.TrimSpace(m[1])
	if strings.EqualFold(v, "null") {
		return ""
	}
	*n++
	return v
}

func matchFloat(re *regexp.Regexp, content string, n *int) *float64 {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	*n++
	return &v
}

func matchInt(re *regexp.Regexp, content string, n *int) *int {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	*n++
	return &v
}

func matchBool(re *regexp.Regexp, content string, n *int) *bool {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	*n++
	v := strings.EqualFold(strings.TrimSpace(m[1]), "true")
	return &v
}

// apiResponse mirrors the validator's raw JSON payload. Field names are the
// validator's mixed camelCase/snake_case vocabulary; unknown keys are ignored.
type apiResponse struct {
	LeadScore             *float64 `json:"leadScore"`
	QualityScore          *float64 `json:"qualityScore"`
	FraudScore            *float64 `json:"fraudScore"`
	DataQualityScore      *float64 `json:"dataQualityScore"`
	Recommendation        string   `json:"recommendation"`
	QualityLevel          string   `json:"qualityLevel"`
	FraudRiskLevel        string   `json:"fraudRiskLevel"`
	MarketSegment         string   `json:"marketSegment"`
	PhoneValid            *bool    `json:"phoneValid"`
	PhoneCarrier          string   `json:"phoneCarrier"`
	PhoneLocation         string   `json:"phoneLocation"`
	EmailValid            *bool    `json:"emailValid"`
	EmailSendable         *bool    `json:"emailSendable"`
	IsBounceLikely        *bool    `json:"isBounceLikely"`
	IsGibberishEmail      *bool    `json:"isGibberishEmail"`
	IsGibberishName       *bool    `json:"isGibberishName"`
	IsGibberishCompany    *bool    `json:"isGibberishCompany"`
	IsFakePhone           *bool    `json:"isFakePhone"`
	IsFakeLead            *bool    `json:"isFakeLead"`
	IsDisposable          *bool    `json:"isDisposable"`
	BusinessStrengthScore *float64 `json:"businessStrengthScore"`

	EmailScore        *float64 `json:"emailScore"`
	PhoneScore        *float64 `json:"phoneScore"`
	NameScore         *float64 `json:"nameScore"`
	CompanyScore      *float64 `json:"companyScore"`
	CompletenessScore *float64 `json:"completenessScore"`

	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Company    string `json:"company"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`

	EmailSummary *apiEmailSummary `json:"emailSummary"`

	QualityFactors []string `json:"qualityFactors"`
	FraudFactors   []string `json:"fraudFactors"`
	SummaryNotes   []string `json:"summaryNotes"`
}

type apiEmailSummary struct {
	TotalEmails    *int     `json:"totalEmails"`
	ValidEmails    *int     `json:"validEmails"`
	SendableEmails *int     `json:"sendableEmails"`
	QualityScore   *float64 `json:"qualityScore"`
}

// parseAPIResponse decodes the raw JSON block. A type mismatch on one field
// still yields the other fields, so it is applied and reported as a soft
// error; a syntax failure yields nothing. applied reports whether any API
// data reached the record.
func parseAPIResponse(rec *model.ValidationRecord, desc string) (applied bool, err error) {
	m := rawAPISectionRe.FindStringSubmatch(desc)
	if m == nil {
		return false, nil
	}
	content := cleanJSON(m[1])
	if content == "" {
		return false, eris.New("parse: api response block holds no JSON object")
	}

	var api apiResponse
	decodeErr := json.Unmarshal([]byte(content), &api)
	if decodeErr != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(decodeErr, &typeErr) {
			return false, eris.Wrap(decodeErr, "parse: decode api response")
		}
		err = eris.Wrap(decodeErr, "parse: partial api response")
	}

	applyAPI(rec, &api)
	return true, err
}

// cleanJSON trims the noise validators wrap around the payload, keeping the
// first "{" through the last "}".
func cleanJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return content[start : end+1]
}

func applyAPI(rec *model.ValidationRecord, api *apiResponse) {
	rec.APILeadScore = api.LeadScore
	rec.APIQualityScore = api.QualityScore
	rec.APIFraudScore = api.FraudScore
	rec.APIDataQualityScore = api.DataQualityScore
	rec.APIRecommendation = api.Recommendation
	rec.APIQualityLevel = api.QualityLevel
	rec.APIFraudRiskLevel = api.FraudRiskLevel
	rec.APIMarketSegment = api.MarketSegment
	rec.APIPhoneValid = api.PhoneValid
	rec.APIPhoneCarrier = api.PhoneCarrier
	rec.APIPhoneLocation = api.PhoneLocation
	rec.APIEmailValid = api.EmailValid
	rec.APIEmailSendable = api.EmailSendable
	rec.APIBounceLikely = api.IsBounceLikely
	rec.APIGibberishEmail = api.IsGibberishEmail
	rec.APIGibberishName = api.IsGibberishName
	rec.APIGibberishCompany = api.IsGibberishCompany
	rec.APIFakePhone = api.IsFakePhone
	rec.APIFakeLead = api.IsFakeLead
	rec.APIDisposableEmail = api.IsDisposable
	rec.APIBusinessStrengthScore = api.BusinessStrengthScore
	rec.APIFirstName = api.FirstName
	rec.APILastName = api.LastName
	rec.APICompany = api.Company
	rec.APIEmail = api.Email
	rec.APIPhone = api.Phone
	rec.APIState = api.State
	rec.APIPostalCode = api.PostalCode

	rec.EmailScore = api.EmailScore
	rec.PhoneScore = api.PhoneScore
	rec.NameScore = api.NameScore
	rec.CompanyScore = api.CompanyScore
	rec.CompletenessScore = api.CompletenessScore

	if s := api.EmailSummary; s != nil {
		rec.APITotalEmails = s.TotalEmails
		rec.APIValidEmails = s.ValidEmails
		rec.APISendableEmails = s.SendableEmails
		rec.APIEmailSummaryQualityScore = s.QualityScore
	}

	rec.APIQualityFactors = strings.Join(api.QualityFactors, ", ")
	rec.APIFraudFactors = strings.Join(api.FraudFactors, ", ")
	rec.APISummaryNotes = strings.Join(api.SummaryNotes, ", ")
}
