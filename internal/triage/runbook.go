package triage

import "slices"

// Step is one section of a detailed runbook.
type Step struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// Runbook is the remediation guide for a (system, symptom) pair.
type Runbook struct {
	Key            string   `json:"key"`
	Title          string   `json:"title"`
	QuickChecklist []string `json:"quick_checklist"`
	Steps          []Step   `json:"steps"`
	NextAction     string   `json:"next_action"`
	Link           string   `json:"link,omitempty"`
}

type runbookKey struct {
	system  System
	symptom Symptom
}

var runbooks = map[runbookKey]Runbook{
	{SystemInfra, SymptomFailover}: {
		Key:   "infra.failover",
		Title: "Failover de clúster",
		QuickChecklist: []string{
			"Confirmar qué nodo quedó activo y desde qué hora.",
			"Validar que los recursos del clúster estén en línea.",
			"Verificar que las aplicaciones respondan sobre el nodo activo.",
			"Revisar eventos del clúster previos al failover.",
		},
		Steps: []Step{
			{Title: "Estado del clúster", Bullets: []string{
				"Consultar el estado de nodos y grupos de recursos.",
				"Identificar recursos en estado failed u offline.",
			}},
			{Title: "Servicios afectados", Bullets: []string{
				"Probar conectividad a las IP virtuales del clúster.",
				"Validar instancias de aplicación y base de datos sobre el nodo activo.",
			}},
			{Title: "Causa raíz preliminar", Bullets: []string{
				"Revisar logs del sistema y del clúster alrededor de la hora del evento.",
				"Verificar red de heartbeat, almacenamiento compartido y quorum.",
			}},
		},
		NextAction: "Escalar a L2 de Infraestructura de inmediato y activar guardia. No forzar failback sin aprobación.",
	},
	{SystemInfra, SymptomDown}: {
		Key:   "infra.down",
		Title: "Servidor o servicio de infraestructura caído",
		QuickChecklist: []string{
			"Validar respuesta a ping y puertos del servicio.",
			"Revisar consola del hipervisor o de la nube.",
			"Revisar uso de CPU, memoria y disco antes de la caída.",
			"Confirmar alcance: un nodo o varios.",
		},
		Steps: []Step{
			{Title: "Disponibilidad", Bullets: []string{
				"Verificar estado de la VM o del host en la consola.",
				"Comprobar si hubo reinicio no planificado.",
			}},
			{Title: "Recursos", Bullets: []string{
				"Revisar saturación de disco, memoria y CPU.",
				"Validar almacenamiento y red asociados.",
			}},
			{Title: "Recuperación", Bullets: []string{
				"Reiniciar el servicio solo si el runbook del servicio lo permite.",
				"Documentar hora de caída y hora de recuperación.",
			}},
		},
		NextAction: "Escalar a L2 de Infraestructura. Si es producción, activar guardia.",
	},
	{SystemSAP, SymptomQueueing}: {
		Key:   "sap.queueing",
		Title: "Encolamiento en SAP (qRFC/tRFC)",
		QuickChecklist: []string{
			"Revisar colas de salida y entrada en SMQ1/SMQ2.",
			"Revisar llamadas tRFC fallidas en SM58.",
			"Validar destinos RFC en SM59.",
			"Identificar la cola con más entradas y su primer error.",
		},
		Steps: []Step{
			{Title: "Diagnóstico de colas", Bullets: []string{
				"Ordenar colas por cantidad de entradas en SMQ1/SMQ2.",
				"Abrir la primera entrada bloqueada y leer el mensaje de error.",
			}},
			{Title: "Conectividad", Bullets: []string{
				"Probar el destino RFC involucrado en SM59.",
				"Revisar work processes libres en SM50/SM66.",
			}},
			{Title: "Desbloqueo", Bullets: []string{
				"Desbloquear o reprocesar la cola solo con aprobación del responsable funcional.",
				"Monitorear que la cola baje después del reproceso.",
			}},
		},
		NextAction: "Escalar a L2 SAP Basis. En producción, activar guardia.",
	},
	{SystemSAP, SymptomDown}: {
		Key:   "sap.down",
		Title: "Sistema SAP caído o sin respuesta",
		QuickChecklist: []string{
			"Validar acceso por SAP GUI y Fiori.",
			"Revisar estado de instancias y servidor de mensajes.",
			"Revisar estado de la base de datos HANA.",
			"Revisar dumps recientes en ST22 y log del sistema en SM21.",
		},
		Steps: []Step{
			{Title: "Instancias", Bullets: []string{
				"Verificar que ASCS y las instancias de aplicación estén activas.",
				"Revisar el servidor de mensajes y el dispatcher.",
			}},
			{Title: "Base de datos", Bullets: []string{
				"Validar que HANA esté en línea y sin bloqueos.",
				"Revisar espacio en log y data volumes.",
			}},
			{Title: "Comunicación", Bullets: []string{
				"Informar a usuarios clave el inicio de la atención.",
				"Registrar hora de inicio del incidente.",
			}},
		},
		NextAction: "Escalar a L2 SAP Basis de inmediato. En producción, activar guardia.",
	},
}

var genericRunbook = Runbook{
	Key:   "generic",
	Title: "Atención L1 genérica",
	QuickChecklist: []string{
		"Confirmar alcance e impacto en usuarios.",
		"Revisar el dashboard del servicio y los últimos despliegues.",
		"Revisar logs de aplicación en la ventana del evento.",
		"Validar si el problema es reproducible.",
	},
	Steps: []Step{
		{Title: "Alcance", Bullets: []string{
			"Identificar usuarios, sedes o procesos afectados.",
			"Confirmar desde cuándo ocurre.",
		}},
		{Title: "Evidencia", Bullets: []string{
			"Recolectar mensajes de error y capturas.",
			"Correlacionar con cambios o despliegues recientes.",
		}},
	},
}

const (
	nextActionP1 = "Escalar a L2 de inmediato y activar la guardia."
	nextActionP2 = "Monitorear el impacto y escalar a L2 si persiste."
)

// SelectRunbook returns the runbook for (sys, sym). Pairs without a dedicated
// runbook get the generic L1 guide, whose next action follows sev.
func SelectRunbook(sys System, sym Symptom, sev Severity) Runbook {
	rb, ok := runbooks[runbookKey{sys, sym}]
	if !ok {
		rb = genericRunbook
		rb.NextAction = nextActionP2
		if sev == SeverityP1 {
			rb.NextAction = nextActionP1
		}
	}
	rb.QuickChecklist = slices.Clone(rb.QuickChecklist)
	rb.Steps = slices.Clone(rb.Steps)
	for i := range rb.Steps {
		rb.Steps[i].Bullets = slices.Clone(rb.Steps[i].Bullets)
	}
	return rb
}

// SystemLabel is the display name of a system.
func SystemLabel(sys System) string {
	switch sys {
	case SystemSAP:
		return "SAP"
	case SystemInfra:
		return "Infraestructura"
	case SystemOther:
		return "Otro"
	}
	return "Sin identificar"
}

// EnvironmentLabel is the display name of an environment.
func EnvironmentLabel(env Environment) string {
	switch env {
	case EnvQA:
		return "QA"
	case EnvDev:
		return "Desarrollo"
	}
	return "Producción"
}

// SymptomLabel is the human readable symptom, worded for the affected system.
func SymptomLabel(sys System, sym Symptom) string {
	switch sym {
	case SymptomFailover:
		return "Failover de clúster / cambio de nodo"
	case SymptomQueueing:
		return "Encolamiento qRFC/tRFC (SMQ1/SMQ2/SM58)"
	case SymptomDown:
		switch sys {
		case SystemSAP:
			return "Sistema SAP caído o sin respuesta"
		case SystemInfra:
			return "Servidor o servicio de infraestructura caído"
		}
		return "Servicio caído"
	case SymptomSlow:
		if sys == SystemSAP {
			return "Lentitud en SAP (tiempos de respuesta de diálogo)"
		}
		return "Lentitud o degradación"
	case SymptomErrors:
		if sys == SystemSAP {
			return "Errores en SAP (dumps ST22, jobs fallidos)"
		}
		return "Errores de aplicación"
	}
	return "Síntoma no identificado"
}
