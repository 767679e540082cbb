package services

import (
	"fmt"
	"forms_platform/platform/schema"
	"forms_platform/utils"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AcademicService serves the read-only institution/faculty/domain/specialty
// hierarchy that backs the academic select field types.
type AcademicService struct {
	db *gorm.DB
}

func (s *AcademicService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/institutions", s.ListInstitutions)
	r.Get("/faculties", s.ListFaculties)
	r.Get("/domains", s.ListDomains)
	r.Get("/specialties", s.ListSpecialties)

	return r
}

type institutionInfo struct {
	Id   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type facultyInfo struct {
	Id            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	InstitutionId *uuid.UUID `json:"institution_id"`
}

type domainInfo struct {
	Id        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	FacultyId uuid.UUID `json:"faculte_id"`
}

type specialtyInfo struct {
	Id       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	DomainId uuid.UUID `json:"domaine_id"`
}

func (s *AcademicService) ListInstitutions(w http.ResponseWriter, r *http.Request) {
	var institutions []schema.Institution
	result := s.db.Order("name").Find(&institutions)
	if result.Error != nil {
		slog.Error("sql error listing institutions", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing institutions: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]institutionInfo, 0, len(institutions))
	for _, inst := range institutions {
		infos = append(infos, institutionInfo{Id: inst.Id, Name: inst.Name})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *AcademicService) ListFaculties(w http.ResponseWriter, r *http.Request) {
	institutionId, err := utils.QueryParamUUID(r, "institution_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := s.db.Order("name")
	if institutionId != uuid.Nil {
		query = query.Where("institution_id = ?", institutionId)
	}

	var faculties []schema.Faculty
	result := query.Find(&faculties)
	if result.Error != nil {
		slog.Error("sql error listing faculties", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing faculties: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]facultyInfo, 0, len(faculties))
	for _, faculty := range faculties {
		infos = append(infos, facultyInfo{Id: faculty.Id, Name: faculty.Name, InstitutionId: faculty.InstitutionId})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *AcademicService) ListDomains(w http.ResponseWriter, r *http.Request) {
	facultyId, err := utils.QueryParamUUID(r, "faculte_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := s.db.Order("name")
	if facultyId != uuid.Nil {
		query = query.Where("faculty_id = ?", facultyId)
	}

	var domains []schema.Domain
	result := query.Find(&domains)
	if result.Error != nil {
		slog.Error("sql error listing domains", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing domains: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]domainInfo, 0, len(domains))
	for _, domain := range domains {
		infos = append(infos, domainInfo{Id: domain.Id, Name: domain.Name, FacultyId: domain.FacultyId})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *AcademicService) ListSpecialties(w http.ResponseWriter, r *http.Request) {
	domainId, err := utils.QueryParamUUID(r, "domaine_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := s.db.Order("name")
	if domainId != uuid.Nil {
		query = query.Where("domain_id = ?", domainId)
	}

	var specialties []schema.Specialty
	result := query.Find(&specialties)
	if result.Error != nil {
		slog.Error("sql error listing specialties", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing specialties: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]specialtyInfo, 0, len(specialties))
	for _, specialty := range specialties {
		infos = append(infos, specialtyInfo{Id: specialty.Id, Name: specialty.Name, DomainId: specialty.DomainId})
	}
	utils.WriteJsonResponse(w, infos)
}
