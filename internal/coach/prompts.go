package coach

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Knowledge supplies the static domain data interpolated into prompts.
type Knowledge interface {
	ProductDetails(name string) string
	FAQ() string
}

const (
	jsonAssistantSystem = "Eres un asistente que solo responde con JSON válido y en español."
	rhetoricCoachSystem = "Eres un coach de ventas de élite experto en retórica que siempre responde con un objeto JSON válido, completo y en español, según la estructura solicitada."
	salesCoachSystem    = "Eres un coach de ventas experto que siempre responde con un objeto JSON válido, completo y en español, según la estructura solicitada."
	elocutionSystem     = "Eres un coach de elocución experto que solo responde en JSON y en español."
)

const rhetoricDefinitions = `**Definiciones clave:**
- **Pre-suasión:** lo que prepara al interlocutor antes del mensaje principal. Evalúa el gancho de apertura.
- **Ethos (credibilidad):** se apoya en Phronesis (sabiduría práctica), Areté (integridad) y Eunoia (buena voluntad hacia el cliente).
- **Pathos (emoción):** conexión emocional e historias.
- **Logos (lógica):** claridad y solidez de los argumentos.`

func categorizePrompt(text string) string {
	return fmt.Sprintf(`Clasifica este texto de ventas en una categoría de producto bancario (por ejemplo 'Tarjeta de Crédito', 'Crédito de Libre Inversión', 'Seguro de Vida', 'Compra de Cartera' u 'Otro'). Responde en español únicamente con un objeto JSON que tenga una sola clave "category". Texto: "%s"`, text)
}

const scoresInstructions = `Analiza el contenido y asígnale un título y puntuaciones numéricas.
` + rhetoricDefinitions + `
**Estructura JSON requerida:**
{
  "title": "Título breve y descriptivo (máximo 5 palabras).",
  "scores": { "presuasion": "Número de 0 a 100.", "ethos": "Número de 0 a 100.", "pathos": "Número de 0 a 100.", "logos": "Número de 0 a 100." }
}`

func scoresPrompt(text string) string {
	if text == "" {
		return scoresInstructions
	}
	return scoresInstructions + "\n**Contenido a analizar:**\n" + text
}

func highlightsPrompt(scores PersuasionScores) string {
	return fmt.Sprintf(`Con base en el contenido y sus puntuaciones, extrae las frases clave.
**Puntuaciones:** %s
**Estructura JSON requerida:**
{
  "highlights": [ { "text": "Frase concreta.", "type": "presuasion|ethos|pathos|logos", "explanation": "Explicación breve." } ]
}`, scoresJSON(scores))
}

func feedbackPrompt(scores PersuasionScores, withComparison bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Con base en el contenido y sus puntuaciones, entrega un feedback detallado.
%s
**Puntuaciones asignadas:** %s
**Estructura JSON requerida:**
{
  "highlights": [ { "text": "Frase concreta.", "type": "presuasion|ethos|pathos|logos", "explanation": "Explicación." } ],
  "feedback": {
    "ethos": {
      "phronesis": { "advice": "Consejo.", "example": { "before": "Frase original.", "after": "Frase mejorada." } },
      "arete": { "advice": "Consejo.", "example": { "before": "Frase original.", "after": "Frase mejorada." } },
      "eunoia": { "advice": "Consejo.", "example": { "before": "Frase original.", "after": "Frase mejorada." } }
    },
    "pathos": { "advice": "Consejo.", "example": { "before": "Frase original.", "after": "Frase mejorada." } },
    "logos": { "advice": "Consejo.", "example": { "before": "Frase original.", "after": "Frase mejorada." } }
  },
  "exercises": [ { "type": "presuasion|ethos|pathos|logos", "title": "Título.", "description": "Descripción." } ],
  "improvedText": "Versión mejorada del guion."`, rhetoricDefinitions, scoresJSON(scores))
	if withComparison {
		b.WriteString(`,
  "comparisonAnalysis": { "keyImprovement": "Principal mejora.", "recurringWeakness": "Debilidad que se repite.", "strategicAdvice": "Consejo estratégico." }`)
	}
	b.WriteString("\n}")
	return b.String()
}

func historicalSection(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n**Guiones anteriores para comparar:**\n")
	for i, t := range texts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "---Guion Anterior %d---\n%s\n", i+1, t)
	}
	return b.String()
}

const tonePrompt = `Evalúa el tono, el ritmo y las muletillas del audio adjunto. Devuelve un objeto JSON en español con "fillerWordCount" (número), "wordsPerMinute" (número entre 120 y 180) y "feedback" (texto breve en español sobre cómo mejorar la elocución).`

func scoresJSON(s PersuasionScores) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// transcript renders a conversation with seller/client labels and the
// correctness of multiple-choice picks.
func transcript(conversation []ChatMessage) string {
	lines := make([]string, 0, len(conversation))
	for _, m := range conversation {
		speaker := "Cliente"
		if m.Role == ChatRoleUser {
			speaker = "Vendedor"
		}
		note := ""
		if m.WasCorrect != nil {
			if *m.WasCorrect {
				note = "(Opción Correcta)"
			} else {
				note = "(Opción Incorrecta)"
			}
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", speaker, note, m.Text))
	}
	return strings.Join(lines, "\n")
}

func rolePlayAnalysisPrompt(conversation []ChatMessage, clientProfile, product string) string {
	return fmt.Sprintf(`Eres un coach de ventas especializado en simulaciones. Analiza esta transcripción de una llamada en frío simulada y devuelve un objeto JSON con tu evaluación. Responde en español y solo con el objeto JSON.

**Contexto de la simulación:**
- **Banco:** Bancolombia, **Producto ofrecido:** %s, **Perfil del cliente:** %s

**Estructura JSON requerida (todo el texto en español):**
{
  "title": "Título breve (máximo 5 palabras).",
  "scores": { "adaptability": "Puntuación de 0 a 100.", "questioning": "Puntuación de 0 a 100.", "objectionHandling": "Puntuación de 0 a 100.", "closing": "Puntuación de 0 a 100." },
  "keyMoments": [ { "type": "praise|suggestion", "exchange": { "user": "Frase del vendedor.", "model": "Respuesta del cliente." }, "feedback": "Comentario breve." } ],
  "overallFeedback": "Resumen general del desempeño.",
  "exercises": [ { "title": "Título del ejercicio.", "description": "Descripción.", "scenario": "Escenario de práctica." } ]
}

**Transcripción a analizar:**
%s
`, product, clientProfile, transcript(conversation))
}

func scriptPrompt(req ScriptRequest, productDetails, faq string) string {
	keyPoints := fmt.Sprintf("Genera 3-4 puntos clave realistas para '%s' de Bancolombia.", req.Product)
	if req.KeyPoints != "" {
		keyPoints = fmt.Sprintf("Usa únicamente estos: \"%s\"", req.KeyPoints)
	}
	return fmt.Sprintf(`Eres copywriter y coach de ventas de élite de Bancolombia. Escribe un guion de venta en frío para un asesor.
**Reglas y contexto:**
1. **Sin escalamiento:** el asesor no puede transferir a un supervisor.
2. **Sin envío de información:** todo se resuelve durante la llamada.
3. **Cierre permitido:** puede mencionarse el envío de términos y condiciones tras la aceptación.
4. **Producto realista:** usa características reales de Bancolombia.

**Datos del guion:**
- **Producto o servicio:** %s
- **Puntos clave:** %s
- **Tono:** %s
- **Canal:** %s.
- **Información detallada del producto (referencia):**
  ---
  %s
  ---
- **Preguntas frecuentes de clientes (úsalas para anticipar objeciones en el guion):**
  ---
  %s
  ---

**Formato de salida:**
Responde SOLO con el texto del guion en español, sin introducciones ni markdown.
`, req.Product, keyPoints, req.Tone, req.Channel, productDetails, faq)
}

func rolePlayPersonaPrompt(clientProfile, product, productDetails string) string {
	return fmt.Sprintf(`Eres un cliente de Bancolombia en una simulación de ventas. Tu personalidad: "%s". El vendedor te ofrece: "%s".
**Lo que sabes del producto como cliente:**
%s

**REGLAS QUE NUNCA ROMPES:**
- **NADA POR CORREO:** rechaza que te envíen información; pide resolver todo en la llamada.
- **SIN SUPERVISOR:** no pidas que te comuniquen con un supervisor.
- **SIN SUCURSAL:** no aceptes ir a una oficina.
**Dinámica "Tres Objeciones y Cierre":**
Plantea como máximo 3 objeciones importantes. Después de la tercera, lleva la conversación a una decisión (SÍ, NO o agendar otra llamada). Compórtate como un cliente real que decide. Responde siempre en español y con brevedad (1 a 3 frases).`, clientProfile, product, productDetails)
}

func multipleChoicePrompt(history []ChatMessage, clientProfile, product, productDetails, faq string) string {
	return fmt.Sprintf(`Eres un coach de ventas que diseña un ejercicio de "elige tu propia aventura" para un vendedor en una llamada en frío.
Tienes dos tareas:
1. **Interpreta al cliente:** responde al último mensaje del vendedor siguiendo estrictamente la personalidad del cliente. **El cliente NO conoce las preguntas frecuentes; actúa con naturalidad.**
2. **Propón 3 opciones al vendedor:** usa la BASE DE CONOCIMIENTO para redactar las opciones y sus explicaciones. Una opción es excelente (la correcta) y las otras dos son errores habituales.

**BASE DE CONOCIMIENTO (preguntas frecuentes):**
La **opción correcta** debe apoyarse en esta información para resolver dudas comunes con precisión y demostrar dominio de los productos y procesos de Bancolombia.
---
%s
---

**Técnicas para la opción correcta:**
La opción correcta debe aplicar una técnica de manejo de objeciones que haga avanzar la venta:
- **Validar y reencuadrar:** reconoce la preocupación y cambia la perspectiva.
- **Clarificar y aislar:** pregunta por la raíz de la objeción y confirma que es la única.
- **Solución condicional (cierre de prueba):** ofrece resolver la objeción a cambio de un avance del cliente.
- **Historias o prueba social:** cuenta el caso anónimo de otro cliente que superó una duda parecida.

**Errores habituales para las opciones incorrectas:**
- Ofrecer más información sin pedir un compromiso.
- Ser lógicamente correcta pero ignorar el estado emocional del cliente.
- Cederle el control al cliente ("¿Qué más quisiera saber?").

**Contexto y reglas:**
- **Banco:** Bancolombia, **Producto:** %s, **Cliente:** %s
- **Información del producto para las opciones y explicaciones:**
  ---
  %s
  ---
- **Reglas:** ninguna opción puede ofrecer enviar correos, escalar la llamada ni similares.

**Historial de la conversación:**
%s

**Salida (JSON estricto, todo en español):**
{
  "clientResponse": "Tu respuesta como cliente.",
  "options": [
    { "text": "Opción 1.", "isCorrect": true, "explanation": "Explicación." },
    { "text": "Opción 2.", "isCorrect": false, "explanation": "Explicación." },
    { "text": "Opción 3.", "isCorrect": false, "explanation": "Explicación." }
  ]
}`, faq, product, clientProfile, productDetails, transcript(history))
}

func caseStudyPrompt(problemType, userNotes string) string {
	if userNotes == "" {
		userNotes = "Ninguna."
	}
	return fmt.Sprintf(`**Rol:** diseñas material de entrenamiento para los equipos comerciales de Bancolombia y creas simulaciones realistas a partir de quejas frecuentes de clientes.

**Objetivo:** genera una simulación detallada de una llamada telefónica que contraste una atención deficiente con un proceso ideal que resuelva el problema y presente una oferta de valor pertinente.

**Contexto:**
- **Tipo de problema:** %s
- **Notas adicionales:** %s

**Estructura JSON requerida (responde solo con este objeto, en español):**
{
  "scenario": {
    "clientProfile": "Perfil del cliente (nombre, ocupación, estado emocional).",
    "problem": "Descripción clara del problema."
  },
  "deficientInteraction": {
    "transcript": "Transcripción COMPLETA de una llamada mal gestionada en sus 5 pasos: saludo, motivo, oferta, objeción y cierre.",
    "criticalAnalysis": [
      "Fallo en el saludo y la empatía.",
      "Error en el sondeo y la oferta.",
      "Mal manejo de la objeción.",
      "Cierre contraproducente."
    ]
  },
  "idealProcess": {
    "step1_empathy": { "title": "Acogida empática y escucha activa", "description": "Validar la emoción del cliente para generar confianza.", "exampleDialog": "ASESOR: '...'" },
    "step2_diagnosis": { "title": "Diagnóstico y explicación transparente", "description": "Investigar la causa y explicarla con sencillez.", "exampleDialog": "ASESOR: '...'" },
    "step3_solution": { "title": "Solución proactiva y concreta", "description": "Dar acciones específicas y compensar el inconveniente.", "exampleDialog": "ASESOR: '...'" },
    "step4_crossSell": { "title": "Transición y venta cruzada pertinente", "description": "Con el problema resuelto, pasar con naturalidad a un producto de valor.", "exampleDialog": "ASESOR: '...'" },
    "step5_closure": { "title": "Cierre y confirmación", "description": "Confirmar la satisfacción del cliente y resumir los siguientes pasos.", "exampleDialog": "ASESOR: '...'" }
  }
}`, problemType, userNotes)
}
