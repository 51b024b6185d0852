package audit

import (
	"context"
	"log/slog"
)

// Seed populates an empty store with a small set of representative demo
// events for development environments. It is a no-op when the store already
// holds events.
func Seed(ctx context.Context, recorder *Recorder, store Store) error {
	existing, err := store.All(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	failed := false
	entries := []Entry{
		{
			Action:      ActionLoginSuccess,
			ActorID:     "1",
			ActorName:   "Juan Pérez",
			ActorRole:   "administrador",
			Description: "Inicio de sesión exitoso para admin@instituto.edu",
		},
		{
			Action:      ActionLoginSuccess,
			ActorID:     "2",
			ActorName:   "María García",
			ActorRole:   "coordinador",
			Description: "Inicio de sesión exitoso para coordinador@instituto.edu",
		},
		{
			Action:       ActionLoginFailed,
			ActorID:      "anonymous",
			ActorName:    "Usuario Anónimo",
			ActorRole:    "guest",
			Description:  "Intento fallido de inicio de sesión para hacker@malicious.com",
			Success:      &failed,
			ErrorMessage: "Credenciales inválidas",
			Severity:     SeverityWarning,
			Metadata:     map[string]string{"email": "hacker@malicious.com"},
		},
		{
			Action:      ActionUserCreate,
			ActorID:     "1",
			ActorName:   "Juan Pérez",
			ActorRole:   "administrador",
			Description: "Nuevo usuario creado: Ana Martínez",
			TargetType:  "user",
			TargetID:    "4",
			TargetName:  "Ana Martínez",
			Metadata: map[string]string{
				"email":        "ana@instituto.edu",
				"rol":          "docente",
				"departamento": "Matemáticas",
			},
		},
		{
			Action:      ActionUserUpdate,
			ActorID:     "1",
			ActorName:   "Juan Pérez",
			ActorRole:   "administrador",
			Description: "Actualización de información del usuario Carlos Rodríguez",
			TargetType:  "user",
			TargetID:    "3",
			TargetName:  "Carlos Rodríguez",
			Changes: []Change{
				{Field: "departamento", OldValue: "Física", NewValue: "Matemáticas"},
			},
		},
		{
			Action:      ActionFileUpload,
			ActorID:     "3",
			ActorName:   "Carlos Rodríguez",
			ActorRole:   "docente",
			Description: "Carga de archivo de calificaciones: notas_matematicas_2024.xlsx",
			TargetType:  "file",
			TargetName:  "notas_matematicas_2024.xlsx",
			Metadata:    map[string]string{"materia": "Matemáticas", "registros": "32"},
		},
		{
			Action:      ActionFichaCreate,
			ActorID:     "2",
			ActorName:   "María García",
			ActorRole:   "coordinador",
			Description: "Creación de ficha 2669742 - Análisis y Desarrollo de Software",
			TargetType:  "ficha",
			TargetID:    "2669742",
			TargetName:  "Análisis y Desarrollo de Software",
		},
		{
			Action:      ActionReportGenerate,
			ActorID:     "2",
			ActorName:   "María García",
			ActorRole:   "coordinador",
			Description: "Generación de reporte comparativo de materias",
			TargetType:  "report",
			TargetName:  "Reporte Comparativo",
		},
		{
			Action:       ActionUnauthorizedAttempt,
			ActorID:      "3",
			ActorName:    "Carlos Rodríguez",
			ActorRole:    "docente",
			Description:  "Intento de acceso a la gestión de usuarios sin permisos",
			Success:      &failed,
			ErrorMessage: "Permisos insuficientes",
		},
	}

	for _, e := range entries {
		if _, err := recorder.Record(ctx, e); err != nil {
			return err
		}
	}

	slog.Info("seeded demo audit events", "count", len(entries))
	return nil
}
