package api

import (
	"net/http"
)

func issueAccessHandler(svc AccessService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IssueAccessRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		providerID, ok := parseID(w, req.ProviderID, "provider_id")
		if !ok {
			return
		}
		patientID, ok := parseID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}

		ar, err := svc.Issue(r.Context(), providerID, patientID)
		if err != nil {
			errs.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAccessResponse(ar))
	}
}

func getAccessHandler(svc AccessService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id", "access_request_id")
		if !ok {
			return
		}
		ar, err := svc.Get(r.Context(), id)
		if err != nil {
			errs.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAccessResponse(ar))
	}
}

func verifyOTPHandler(svc AccessService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id", "access_request_id")
		if !ok {
			return
		}
		var req VerifyOTPRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.OTP == "" {
			writeError(w, http.StatusBadRequest, "invalid_otp", "otp is required")
			return
		}

		ar, err := svc.Verify(r.Context(), id, req.OTP)
		if err != nil {
			errs.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAccessResponse(ar))
	}
}
